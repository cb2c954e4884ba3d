package xhs

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"math/big"
	"strconv"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// signScript 网页端的签名函数, 由已登录页面加载
const signScript = `([targetUrl, body]) => window._webmsxyw(targetUrl, body)`

// pageSignature 页面签名函数的返回值, X-t 可能是数字或字符串
type pageSignature struct {
	XS string      `json:"X-s"`
	XT json.Number `json:"X-t"`
}

// commonPayload x-s-common 头部字段, 顺序固定
type commonPayload struct {
	S0  int    `json:"s0"`
	S1  string `json:"s1"`
	X0  string `json:"x0"`
	X1  string `json:"x1"`
	X2  string `json:"x2"`
	X3  string `json:"x3"`
	X4  string `json:"x4"`
	X5  string `json:"x5"`
	X6  string `json:"x6"`
	X7  string `json:"x7"`
	X8  string `json:"x8"`
	X9  string `json:"x9"`
	X10 int    `json:"x10"`
}

// PageSign 在已登录的网页中调用 window._webmsxyw 取得 X-S / X-T
// GET 请求传入不带查询串的地址与查询参数, POST 请求传入地址与JSON请求体
func (a *Adapter) PageSign(ctx context.Context, eval platform.Evaluator, req *platform.SignedRequest) error {
	if eval == nil {
		return errors.New("签名需要浏览器页面, 未配置脚本执行器")
	}

	target := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	var data interface{}
	switch {
	case len(req.Body) > 0:
		if err := json.Unmarshal(req.Body, &data); err != nil {
			return fmt.Errorf("解析请求体失败: %w", err)
		}
	case req.URL.RawQuery != "":
		params := make(map[string]string)
		for k := range req.URL.Query() {
			params[k] = req.URL.Query().Get(k)
		}
		data = params
	}

	raw, err := eval.Eval(ctx, Platform, a.WebBase+"/explore", signScript, target, data)
	if err != nil {
		return fmt.Errorf("调用页面签名函数失败: %w", err)
	}
	var sig pageSignature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return fmt.Errorf("解析页面签名失败: %w", err)
	}
	if sig.XS == "" || sig.XT == "" {
		return fmt.Errorf("页面签名为空: %s", raw)
	}

	req.Header.Set("X-S", sig.XS)
	req.Header.Set("X-T", sig.XT.String())
	return nil
}

// Sign 由页面给出的 X-S / X-T 与 a1、b1 计算 x-s-common 和 X-B3-Traceid
// 必须先经过 PageSign; 结果只依赖请求头、cookie快照, 与 now 无关
func (a *Adapter) Sign(req *platform.SignedRequest, snap models.CookieSnapshot, now time.Time) error {
	xs := req.Header.Get("X-S")
	xt := req.Header.Get("X-T")
	if xs == "" || xt == "" {
		return errors.New("缺少页面签名 X-S / X-T")
	}

	common, err := buildXSCommon(snap.Value("a1"), snap.Storage["b1"], xs, xt)
	if err != nil {
		return err
	}
	req.Header.Set("x-s-common", common)
	req.Header.Set("X-B3-Traceid", traceID(xt, xs))
	return nil
}

// traceID 由签名派生的16位十六进制追踪ID
func traceID(xt, xs string) string {
	sum := md5.Sum([]byte(xt + xs))
	return hex.EncodeToString(sum[:])[:16]
}

func buildXSCommon(a1, b1, xs, xt string) (string, error) {
	raw, err := platform.MarshalCompact(commonPayload{
		S0:  3,
		S1:  "",
		X0:  "1",
		X1:  "3.7.8-2",
		X2:  "Mac OS",
		X3:  "xhs-pc-web",
		X4:  "4.27.2",
		X5:  a1,
		X6:  xt,
		X7:  xs,
		X8:  b1,
		X9:  mrc(xt + xs + b1),
		X10: 154,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// mrc 网页端使用的CRC32变体: 初值-1, 算术右移, 结果取反后按无符号32位输出
func mrc(s string) string {
	crc := int64(-1)
	for _, r := range s {
		crc = int64(crc32.IEEETable[(crc^int64(r))&0xFF]) ^ (crc >> 8)
	}
	return strconv.FormatUint(uint64(uint32(crc^-1)), 16)
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// base36 大写36进制编码
func base36(n *big.Int) string {
	if n.Sign() == 0 {
		return "0"
	}
	v := new(big.Int).Abs(n)
	base := big.NewInt(36)
	mod := new(big.Int)
	var digits []byte
	for v.Sign() > 0 {
		v.DivMod(v, base, mod)
		digits = append(digits, base36Alphabet[mod.Int64()])
	}
	if n.Sign() < 0 {
		digits = append(digits, '-')
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

// searchID 搜索会话ID: base36((毫秒时间戳 << 64) + 随机数)
func searchID(now time.Time, entropy int64) string {
	v := new(big.Int).Lsh(big.NewInt(now.UnixMilli()), 64)
	v.Add(v, big.NewInt(entropy))
	return base36(v)
}
