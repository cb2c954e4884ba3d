package client_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RecoveryAshes/MediaCrawler/internal/client"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform/mock"
)

// fakeSource 固定的cookie快照来源
type fakeSource struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSource) Snapshot(ctx context.Context, p models.Platform) (models.CookieSnapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return models.CookieSnapshot{}, f.err
	}
	return models.CookieSnapshot{
		Platform: p,
		Cookies: []models.Cookie{
			{Name: "session", Value: "abc"},
			{Name: "a1", Value: "xyz"},
		},
	}, nil
}

// sleepRecorder 记录退避时长, 不真正等待
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.Handler) (*client.Client, *fakeSource, *sleepRecorder) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter := mock.NewAdapter()
	adapter.BaseURL = srv.URL

	source := &fakeSource{}
	sleeper := &sleepRecorder{}
	c := client.New(platform.NewRegistry(adapter), source, client.Options{
		Timeout:     5 * time.Second,
		MaxRetries:  client.DefaultMaxRetries,
		BackoffBase: time.Second,
		BackoffMax:  10 * time.Second,
		Sleep:       sleeper.Sleep,
		Now:         func() time.Time { return fixedNow },
		Metrics:     client.NewMetrics(prometheus.NewRegistry()),
	})
	return c, source, sleeper
}

func request(c *client.Client, path string) platform.Request {
	return platform.Request{Method: http.MethodGet, Path: path}
}

func callMock(ctx context.Context, c *client.Client, srvURL, path string) ([]byte, error) {
	return c.Call(ctx, mock.DefaultPlatform, platform.Request{Method: http.MethodGet, BaseURL: srvURL, Path: path})
}

func TestCall_SoftRiskControlRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"code":0,"data":{"ok":true}}`)
	}))
	defer srv.Close()

	c, source, sleeper := newTestClient(t, http.NotFoundHandler())

	data, err := callMock(context.Background(), c, srv.URL, "/api/search")
	if err != nil {
		t.Fatalf("期望成功, 得到 %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("期望数据 {\"ok\":true}, 得到 %s", data)
	}
	if got := hits.Load(); got != 4 {
		t.Errorf("期望请求4次, 得到 %d", got)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if diff := cmp.Diff(want, sleeper.Delays()); diff != "" {
		t.Errorf("退避时长不符 (-期望 +得到):\n%s", diff)
	}

	// 每次风控后刷新cookie
	if got := source.calls.Load(); got != 4 {
		t.Errorf("期望读取快照4次, 得到 %d", got)
	}
}

func TestCall_SoftRiskControlExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, `{"code":429,"message":"slow down"}`)
	}))
	defer srv.Close()

	c, _, sleeper := newTestClient(t, http.NotFoundHandler())

	_, err := callMock(context.Background(), c, srv.URL, "/api/search")
	if !errors.Is(err, models.ErrSoftRiskControl) {
		t.Fatalf("期望风控错误, 得到 %v", err)
	}

	var se *models.SoftRiskControlError
	if !errors.As(err, &se) {
		t.Fatalf("期望 *SoftRiskControlError, 得到 %T", err)
	}
	if se.Attempts != client.DefaultMaxRetries+1 {
		t.Errorf("期望尝试 %d 次, 得到 %d", client.DefaultMaxRetries+1, se.Attempts)
	}
	if got := hits.Load(); got != int32(client.DefaultMaxRetries+1) {
		t.Errorf("期望请求 %d 次, 得到 %d", client.DefaultMaxRetries+1, got)
	}
	if got := len(sleeper.Delays()); got != client.DefaultMaxRetries {
		t.Errorf("期望退避 %d 次, 得到 %d", client.DefaultMaxRetries, got)
	}
}

func TestCall_AuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":-1,"message":"请先登录"}`)
	}))
	defer srv.Close()

	adapter := mock.NewAdapter()
	adapter.BaseURL = srv.URL

	var expired []models.Platform
	sleeper := &sleepRecorder{}
	c := client.New(platform.NewRegistry(adapter), &fakeSource{}, client.Options{
		Sleep: sleeper.Sleep,
		OnAuthExpired: func(ctx context.Context, p models.Platform) {
			expired = append(expired, p)
		},
	})

	_, err := callMock(context.Background(), c, srv.URL, "/api/detail")
	if !errors.Is(err, models.ErrAuthExpired) {
		t.Fatalf("期望登录态失效错误, 得到 %v", err)
	}
	if diff := cmp.Diff([]models.Platform{mock.DefaultPlatform}, expired); diff != "" {
		t.Errorf("OnAuthExpired 调用不符 (-期望 +得到):\n%s", diff)
	}
	if len(sleeper.Delays()) != 0 {
		t.Error("未登录不应重试")
	}
}

func TestCall_HardFailureNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"业务错误码", http.StatusOK, `{"code":500,"message":"internal"}`, models.ErrHardAPIFailure},
		{"HTTP 500", http.StatusInternalServerError, `oops`, models.ErrHardAPIFailure},
		{"非JSON响应", http.StatusOK, `<html></html>`, models.ErrHardAPIFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, _, sleeper := newTestClient(t, http.NotFoundHandler())
			_, err := callMock(context.Background(), c, srv.URL, "/api/x")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("期望 %v, 得到 %v", tt.wantErr, err)
			}
			if hits.Load() != 1 {
				t.Errorf("期望只请求1次, 得到 %d", hits.Load())
			}
			if len(sleeper.Delays()) != 0 {
				t.Error("硬失败不应退避")
			}
		})
	}
}

func TestCall_TransportErrorIsHardFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, _, _ := newTestClient(t, http.NotFoundHandler())
	_, err := callMock(context.Background(), c, addr, "/api/x")

	var he *models.HardAPIError
	if !errors.As(err, &he) {
		t.Fatalf("期望 *HardAPIError, 得到 %T: %v", err, err)
	}
	if he.Cause == nil {
		t.Error("期望保留底层网络错误")
	}
}

func TestCall_SnapshotError(t *testing.T) {
	adapter := mock.NewAdapter()
	c := client.New(platform.NewRegistry(adapter), &fakeSource{err: models.ErrLaunch}, client.Options{})

	_, err := c.Call(context.Background(), mock.DefaultPlatform, request(c, "/api/x"))
	if !errors.Is(err, models.ErrLaunch) {
		t.Fatalf("期望浏览器启动错误, 得到 %v", err)
	}
}

func TestCall_UnknownPlatform(t *testing.T) {
	c := client.New(platform.NewRegistry(), &fakeSource{}, client.Options{})
	_, err := c.Call(context.Background(), "nope", request(c, "/x"))
	if !errors.Is(err, models.ErrUnknownPlatform) {
		t.Fatalf("期望未知平台错误, 得到 %v", err)
	}
}

func TestCall_SignsAndSendsCookies(t *testing.T) {
	var gotSign, gotTs, gotCookie, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotSign = r.Header.Get("X-Mock-Sign")
		gotTs = r.Header.Get("X-Mock-Ts")
		if ck, err := r.Cookie("session"); err == nil {
			gotCookie = ck.Value
		}
		io.WriteString(w, `{"code":0,"data":{}}`)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, http.NotFoundHandler())
	_, err := c.Call(context.Background(), mock.DefaultPlatform, platform.Request{
		Method:  http.MethodPost,
		BaseURL: srv.URL,
		Path:    "/api/search",
		Body:    map[string]string{"keyword": "咖啡&茶"},
	})
	if err != nil {
		t.Fatalf("调用失败: %v", err)
	}

	wantBody := `{"keyword":"咖啡&茶"}`
	if gotBody != wantBody {
		t.Errorf("期望请求体 %s, 得到 %s", wantBody, gotBody)
	}
	wantTs := strconv.FormatInt(fixedNow.UnixMilli(), 10)
	if gotTs != wantTs {
		t.Errorf("期望时间戳 %s, 得到 %s", wantTs, gotTs)
	}
	sum := md5.Sum([]byte("/api/search" + wantBody + wantTs + "xyz"))
	if want := hex.EncodeToString(sum[:]); gotSign != want {
		t.Errorf("期望签名 %s, 得到 %s", want, gotSign)
	}
	if gotCookie != "abc" {
		t.Errorf("期望携带cookie session=abc, 得到 %q", gotCookie)
	}
}

// pageSigningAdapter 签名值需要在页面中计算的平台
type pageSigningAdapter struct {
	*mock.Adapter
}

func (a pageSigningAdapter) PageSign(ctx context.Context, eval platform.Evaluator, req *platform.SignedRequest) error {
	if eval == nil {
		return errors.New("未配置脚本执行器")
	}
	out, err := eval.Eval(ctx, a.Platform(), "https://p1.test/", "sign", req.URI())
	if err != nil {
		return err
	}
	req.Header.Set("X-Page-Sign", string(out))
	return nil
}

// fakeEvaluator 返回 "page:" + 第一个参数
type fakeEvaluator struct {
	calls atomic.Int32
}

func (f *fakeEvaluator) Eval(ctx context.Context, p models.Platform, pageURL, js string, args ...interface{}) (json.RawMessage, error) {
	f.calls.Add(1)
	return json.Marshal("page:" + args[0].(string))
}

func TestCall_PageSignBeforeSign(t *testing.T) {
	var hits atomic.Int32
	var gotPageSign, gotSign string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotPageSign = r.Header.Get("X-Page-Sign")
		gotSign = r.Header.Get("X-Mock-Sign")
		io.WriteString(w, `{"code":0,"data":{}}`)
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		eval     *fakeEvaluator
		wantErr  bool
		wantHits int32
	}{
		{"页面签名后发送", &fakeEvaluator{}, false, 1},
		{"缺少执行器不发送", nil, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			gotPageSign, gotSign = "", ""

			opts := client.Options{Now: func() time.Time { return fixedNow }}
			if tt.eval != nil {
				opts.Evaluator = tt.eval
			}
			c := client.New(platform.NewRegistry(pageSigningAdapter{mock.NewAdapter()}), &fakeSource{}, opts)

			_, err := c.Call(context.Background(), mock.DefaultPlatform, platform.Request{
				Method:  http.MethodGet,
				BaseURL: srv.URL,
				Path:    "/api/feed",
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("期望错误=%v, 得到 %v", tt.wantErr, err)
			}
			if hits.Load() != tt.wantHits {
				t.Errorf("期望请求 %d 次, 得到 %d", tt.wantHits, hits.Load())
			}
			if tt.wantErr {
				return
			}
			if gotPageSign != `"page:/api/feed"` {
				t.Errorf("页面签名未写入请求头: %q", gotPageSign)
			}
			if gotSign == "" {
				t.Error("页面签名之后仍应计算适配器签名")
			}
			if tt.eval.calls.Load() != 1 {
				t.Errorf("期望执行页面脚本1次, 得到 %d", tt.eval.calls.Load())
			}
		})
	}
}

func TestCall_DecodesBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte(`{"code":0,"data":{"title":"压缩"}}`))
	bw.Close()
	compressed := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Write(compressed)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, http.NotFoundHandler())
	data, err := callMock(context.Background(), c, srv.URL, "/api/x")
	if err != nil {
		t.Fatalf("调用失败: %v", err)
	}
	if string(data) != `{"title":"压缩"}` {
		t.Errorf("解压结果不符: %s", data)
	}
}

func TestCall_RawResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body>profile</body></html>`)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, http.NotFoundHandler())
	data, err := c.Call(context.Background(), mock.DefaultPlatform, platform.Request{
		BaseURL: srv.URL, Path: "/user/profile/u1", Raw: true, Unsigned: true,
	})
	if err != nil {
		t.Fatalf("调用失败: %v", err)
	}
	if !bytes.Contains(data, []byte("profile")) {
		t.Errorf("期望原始HTML, 得到 %s", data)
	}
}

func TestPing(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantLoggedIn bool
		wantErr      bool
	}{
		{"已登录", `{"code":0,"data":{"logged_in":true,"user_id":"u1"}}`, true, false},
		{"未登录", `{"code":0,"data":{"logged_in":false}}`, false, false},
		{"登录态失效", `{"code":-1}`, false, false},
		{"接口错误", `{"code":500}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/ping" {
					http.NotFound(w, r)
					return
				}
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			adapter := mock.NewAdapter()
			adapter.BaseURL = srv.URL
			c := client.New(platform.NewRegistry(adapter), &fakeSource{}, client.Options{})

			loggedIn, identity, err := c.Ping(context.Background(), mock.DefaultPlatform)
			if (err != nil) != tt.wantErr {
				t.Fatalf("期望错误=%v, 得到 %v", tt.wantErr, err)
			}
			if loggedIn != tt.wantLoggedIn {
				t.Errorf("期望登录=%v, 得到 %v", tt.wantLoggedIn, loggedIn)
			}
			if loggedIn && identity["user_id"] != "u1" {
				t.Errorf("期望 user_id=u1, 得到 %v", identity)
			}
		})
	}
}

func TestRefreshCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":{}}`)
	}))
	defer srv.Close()

	c, source, _ := newTestClient(t, http.NotFoundHandler())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := callMock(ctx, c, srv.URL, "/api/x"); err != nil {
			t.Fatalf("调用失败: %v", err)
		}
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("快照应被缓存, 期望读取1次, 得到 %d", got)
	}

	c.RefreshCookies(mock.DefaultPlatform)
	if _, err := callMock(ctx, c, srv.URL, "/api/x"); err != nil {
		t.Fatalf("调用失败: %v", err)
	}
	if got := source.calls.Load(); got != 2 {
		t.Errorf("刷新后期望读取2次, 得到 %d", got)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"第一次重试", 0, time.Second},
		{"第二次重试", 1, 2 * time.Second},
		{"第三次重试", 2, 4 * time.Second},
		{"第四次重试", 3, 8 * time.Second},
		{"达到上限", 4, 10 * time.Second},
		{"远超上限", 30, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := client.CalculateBackoff(tt.attempt, time.Second, 10*time.Second)
			if got != tt.want {
				t.Errorf("期望 %v, 得到 %v", tt.want, got)
			}
		})
	}
}
