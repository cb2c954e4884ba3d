package login

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/go-resty/resty/v2"
)

// 二维码图片大小上限
const maxQRBytes = 2 << 20

// ErrEmptyQR 二维码元素既没有 src 也没有截图
var ErrEmptyQR = errors.New("二维码为空")

// Fetcher 下载远程二维码图片
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// RemoteFetcher 基于 resty 的图片下载器
type RemoteFetcher struct {
	http     *resty.Client
	maxBytes int
}

// NewRemoteFetcher 使用指定的 http.Client 下载图片
func NewRemoteFetcher(hc *http.Client) *RemoteFetcher {
	return &RemoteFetcher{
		http:     resty.NewWithClient(hc),
		maxBytes: maxQRBytes,
	}
}

// NewSafeFetcher 创建防SSRF的图片下载器
// 拒绝内网、回环与元数据地址, 仅允许 http/https 的 80/443 端口
func NewSafeFetcher(timeout time.Duration) *RemoteFetcher {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return NewRemoteFetcher(safeurl.Client(config).Client)
}

// Fetch 下载图片字节
func (f *RemoteFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("下载二维码失败: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("下载二维码失败: HTTP %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, ErrEmptyQR
	}
	if len(body) > f.maxBytes {
		return nil, fmt.Errorf("二维码图片过大: %d 字节", len(body))
	}
	return body, nil
}

// QRNormalizer 把二维码统一为不带 data: 前缀的纯base64
type QRNormalizer struct {
	fetcher Fetcher
}

// NewQRNormalizer 创建二维码规整器
func NewQRNormalizer(fetcher Fetcher) *QRNormalizer {
	return &QRNormalizer{fetcher: fetcher}
}

// Normalize 支持三种来源: 远程URL、data URL、纯base64; src 为空时使用元素截图
// 对等价的图片字节, 三种来源输出完全相同的字符串
func (n *QRNormalizer) Normalize(ctx context.Context, src string, screenshot []byte) (string, error) {
	src = strings.TrimSpace(src)

	switch {
	case src == "":
		if len(screenshot) == 0 {
			return "", ErrEmptyQR
		}
		return base64.StdEncoding.EncodeToString(screenshot), nil

	case strings.HasPrefix(src, "data:"):
		meta, payload, ok := strings.Cut(src, ",")
		if !ok {
			return "", fmt.Errorf("data URL 格式错误")
		}
		if !strings.HasSuffix(meta, ";base64") {
			raw, err := url.PathUnescape(payload)
			if err != nil {
				return "", fmt.Errorf("data URL 格式错误: %w", err)
			}
			return base64.StdEncoding.EncodeToString([]byte(raw)), nil
		}
		return canonicalBase64(payload)

	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"), strings.HasPrefix(src, "//"):
		if n.fetcher == nil {
			return "", fmt.Errorf("未配置二维码下载器: %s", src)
		}
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		body, err := n.fetcher.Fetch(ctx, src)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(body), nil

	default:
		return canonicalBase64(src)
	}
}

// canonicalBase64 校验并重新编码, 去掉换行与URL安全字符差异
func canonicalBase64(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(s); err == nil && len(raw) > 0 {
			return base64.StdEncoding.EncodeToString(raw), nil
		}
	}
	return "", fmt.Errorf("二维码不是有效的base64: %q", truncate(s, 32))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
