package bilibili

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// mixinKeyEncTab WBI混淆表
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// wbiKeyTTL 密钥每天轮换
const wbiKeyTTL = 12 * time.Hour

// ErrWBIKeyMissing 签名前没有拿到WBI密钥
var ErrWBIKeyMissing = errors.New("WBI密钥未就绪")

// mixinKey 由 img_key + sub_key 重排得到32位混淆密钥
func mixinKey(imgKey, subKey string) string {
	orig := imgKey + subKey
	var b strings.Builder
	for _, idx := range mixinKeyEncTab {
		if idx < len(orig) {
			b.WriteByte(orig[idx])
		}
	}
	s := b.String()
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}

// keyFromURL 从 https://i0.hdslb.com/bfs/wbi/<key>.png 中取出 <key>
func keyFromURL(raw string) string {
	base := path.Base(raw)
	return strings.TrimSuffix(base, path.Ext(base))
}

var wbiStrip = strings.NewReplacer("!", "", "'", "", "(", "", ")", "", "*", "")

// signWBI 追加 wts 并计算 w_rid, 返回新的查询串
func signWBI(query url.Values, mixin string, now time.Time) string {
	params := make(url.Values, len(query)+1)
	for k, vs := range query {
		for _, v := range vs {
			params.Add(k, wbiStrip.Replace(v))
		}
	}
	params.Set("wts", strconv.FormatInt(now.Unix(), 10))

	// Encode 按键排序
	encoded := params.Encode()
	sum := md5.Sum([]byte(encoded + mixin))
	return encoded + "&w_rid=" + hex.EncodeToString(sum[:])
}

// Sign 为 wbi 接口追加 wts/w_rid; 非 wbi 接口不改动查询串
func (a *Adapter) Sign(req *platform.SignedRequest, snap models.CookieSnapshot, now time.Time) error {
	if !strings.Contains(req.URL.Path, "/wbi/") {
		return nil
	}
	mixin := a.currentMixin()
	if mixin == "" {
		return ErrWBIKeyMissing
	}
	req.URL.RawQuery = signWBI(req.URL.Query(), mixin, now)
	return nil
}

func (a *Adapter) currentMixin() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mixin
}

// SetWBIKeys 直接设置WBI密钥
func (a *Adapter) SetWBIKeys(imgKey, subKey string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mixin = mixinKey(imgKey, subKey)
	a.keysAt = at
}

// Prepare 确保WBI密钥可用: 优先读取 localStorage 的 wbi_img_urls, 否则调用 nav 接口
func (a *Adapter) Prepare(ctx context.Context, c platform.Caller, snap models.CookieSnapshot) error {
	a.mu.Lock()
	fresh := a.mixin != "" && time.Since(a.keysAt) < wbiKeyTTL
	a.mu.Unlock()
	if fresh {
		return nil
	}

	if raw := snap.Storage["wbi_img_urls"]; raw != "" {
		// 格式: <img_url>-<sub_url>
		if parts := strings.SplitN(raw, "-https", 2); len(parts) == 2 {
			a.SetWBIKeys(keyFromURL(parts[0]), keyFromURL("https"+parts[1]), time.Now())
			return nil
		}
	}

	// nav 在未登录时返回 -101 但仍然携带 wbi_img, 这里取原始响应自行解析
	data, err := c.Call(ctx, Platform, platform.Request{
		Method:   http.MethodGet,
		BaseURL:  a.APIBase,
		Path:     pathNav,
		Unsigned: true,
		Raw:      true,
	})
	if err != nil {
		return err
	}

	var resp struct {
		Data struct {
			WbiImg struct {
				ImgURL string `json:"img_url"`
				SubURL string `json:"sub_url"`
			} `json:"wbi_img"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("解析nav响应失败: %w", err)
	}
	img, sub := keyFromURL(resp.Data.WbiImg.ImgURL), keyFromURL(resp.Data.WbiImg.SubURL)
	if img == "" || sub == "" || img == "." || sub == "." {
		return ErrWBIKeyMissing
	}
	a.SetWBIKeys(img, sub, time.Now())
	return nil
}
