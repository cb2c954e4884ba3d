package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RecoveryAshes/MediaCrawler/internal/crawlers"
	"github.com/RecoveryAshes/MediaCrawler/internal/login"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform/mock"
)

type fakeLogin struct {
	session  *models.LoginSession
	startErr error
	lastReq  login.StartRequest
	codes    map[string]string
	logouts  []models.Platform
	sessions []models.SessionSummary
}

func (f *fakeLogin) StartLogin(_ context.Context, req login.StartRequest) (*models.LoginSession, error) {
	f.lastReq = req
	return f.session.Clone(), f.startErr
}

func (f *fakeLogin) GetStatus(id string) (*models.LoginSession, error) {
	if f.session == nil || f.session.ID != id {
		return nil, models.ErrSessionNotFound
	}
	return f.session.Clone(), nil
}

func (f *fakeLogin) SubmitPhoneCode(id, code string) error {
	if code == "" {
		return &models.ValidationError{Field: "code", Reason: "验证码不能为空"}
	}
	if f.codes == nil {
		f.codes = map[string]string{}
	}
	f.codes[id] = code
	return nil
}

func (f *fakeLogin) Logout(_ context.Context, p models.Platform) error {
	f.logouts = append(f.logouts, p)
	return nil
}

func (f *fakeLogin) ListSessions(context.Context) []models.SessionSummary {
	return f.sessions
}

type nopCaller struct{}

func (nopCaller) Call(context.Context, models.Platform, platform.Request) (json.RawMessage, error) {
	return nil, errors.New("不应发起HTTP请求")
}

func (nopCaller) Snapshot(_ context.Context, p models.Platform) (models.CookieSnapshot, error) {
	return models.CookieSnapshot{Platform: p}, nil
}

func newTestServer(t *testing.T, fl *fakeLogin, a *mock.Adapter) *httptest.Server {
	t.Helper()
	orch := crawlers.New(platform.NewRegistry(a), nopCaller{}, crawlers.Config{
		Defaults: crawlers.Options{Interval: time.Microsecond},
	})
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "测试"}))

	srv := httptest.NewServer(NewServer(Deps{
		Login:    fl,
		Crawler:  orch,
		Gatherer: reg,
		Location: time.UTC,
	}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("创建请求失败: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("解析响应失败: %v: %s", err, raw)
		}
	}
	return resp.StatusCode, out
}

func waitingSession() *models.LoginSession {
	created := time.Now().Add(-3 * time.Second)
	return &models.LoginSession{
		ID:         "S",
		Platform:   mock.DefaultPlatform,
		LoginType:  models.LoginTypeQRCode,
		Status:     models.LoginStatusWaitingScan,
		Message:    "请扫码",
		QRCode:     "iVBORw0KGgo=",
		QRIssuedAt: created,
		CreatedAt:  created,
	}
}

func TestStartLogin(t *testing.T) {
	fl := &fakeLogin{session: waitingSession()}
	srv := newTestServer(t, fl, mock.NewAdapter())

	status, body := do(t, http.MethodPost, srv.URL+"/api/login/start", `{"platform":"P1","login_type":"qrcode"}`)
	if status != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d: %v", status, body)
	}
	if body["session_id"] != "S" || body["status"] != "waiting" || body["qr_code_base64"] != "iVBORw0KGgo=" {
		t.Errorf("响应不符: %v", body)
	}
	if ts, _ := body["qrcode_timestamp"].(float64); ts <= 0 {
		t.Errorf("qrcode_timestamp 应为正数, 得到 %v", body["qrcode_timestamp"])
	}
	if fl.lastReq.Platform != mock.DefaultPlatform || fl.lastReq.LoginType != models.LoginTypeQRCode {
		t.Errorf("平台与登录方式应被规整: %+v", fl.lastReq)
	}

	status, body = do(t, http.MethodGet, srv.URL+"/api/login/sessions/S", "")
	if status != http.StatusOK || body["status"] != "waiting" {
		t.Errorf("状态查询不符: %d %v", status, body)
	}
	if elapsed, _ := body["elapsed"].(float64); elapsed < 3 {
		t.Errorf("elapsed 应不小于3秒, 得到 %v", body["elapsed"])
	}
}

func TestStartLogin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		sess   *models.LoginSession
		err    error
		status int
		code   string
	}{
		{"未知登录方式", `{"platform":"p1","login_type":"fax"}`, nil, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"未知字段", `{"platform":"p1","extra":1}`, nil, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"平台为空", `{"login_type":"qrcode"}`, nil, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{
			name:   "未注册平台",
			body:   `{"platform":"nope"}`,
			err:    errors.Join(models.ErrUnknownPlatform, &models.ValidationError{Field: "platform", Reason: "平台未注册"}),
			status: http.StatusNotFound,
			code:   "UNKNOWN_PLATFORM",
		},
		{
			name:   "浏览器启动失败",
			body:   `{"platform":"p1"}`,
			sess:   &models.LoginSession{ID: "S2", Platform: "p1", Status: models.LoginStatusFailed, Message: "浏览器启动失败"},
			err:    &models.LaunchError{Platform: "p1", Reason: "chromium not found"},
			status: http.StatusServiceUnavailable,
			code:   "BROWSER_LAUNCH_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeLogin{session: tt.sess, startErr: tt.err}, mock.NewAdapter())
			status, body := do(t, http.MethodPost, srv.URL+"/api/login/start", tt.body)
			if status != tt.status {
				t.Fatalf("期望 %d, 得到 %d: %v", tt.status, status, body)
			}

			code, _ := body["code"].(string)
			if e, ok := body["error"].(map[string]interface{}); ok {
				code, _ = e["code"].(string)
				if body["status"] != "failed" || body["message"] == "" {
					t.Errorf("失败的会话应带有状态和原因: %v", body)
				}
			}
			if code != tt.code {
				t.Errorf("期望错误码 %s, 得到 %s", tt.code, code)
			}
		})
	}
}

func TestSessionEndpoints(t *testing.T) {
	sess := waitingSession()
	sess.LoginType = models.LoginTypePhone
	fl := &fakeLogin{
		session:  sess,
		sessions: []models.SessionSummary{{Platform: "p1", IsLoggedIn: true, LastLogin: "2024-05-01 12:00:00"}},
	}
	srv := newTestServer(t, fl, mock.NewAdapter())

	if status, _ := do(t, http.MethodGet, srv.URL+"/api/login/sessions/nope", ""); status != http.StatusNotFound {
		t.Errorf("未知会话期望 404, 得到 %d", status)
	}

	status, _ := do(t, http.MethodPost, srv.URL+"/api/login/sessions/S/code", `{"code":"123456"}`)
	if status != http.StatusAccepted || fl.codes["S"] != "123456" {
		t.Errorf("提交验证码失败: %d %v", status, fl.codes)
	}
	if status, _ := do(t, http.MethodPost, srv.URL+"/api/login/sessions/S/code", `{"code":""}`); status != http.StatusBadRequest {
		t.Errorf("空验证码期望 400, 得到 %d", status)
	}

	status, body := do(t, http.MethodPost, srv.URL+"/api/login/logout/p1", "")
	if status != http.StatusOK || body["ok"] != true {
		t.Errorf("退出登录失败: %d %v", status, body)
	}
	if len(fl.logouts) != 1 || fl.logouts[0] != "p1" {
		t.Errorf("Logout 调用不符: %v", fl.logouts)
	}

	resp, err := http.Get(srv.URL + "/api/login/sessions")
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()
	var list []models.SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(list) != 1 || !list[0].IsLoggedIn || list[0].LastLogin != "2024-05-01 12:00:00" {
		t.Errorf("会话列表不符: %+v", list)
	}
}

func TestCrawlSearch(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(50, "咖啡")
	srv := newTestServer(t, &fakeLogin{}, a)

	status, body := do(t, http.MethodPost, srv.URL+"/api/crawl/search",
		`{"platform":"p1","keywords":["咖啡"],"page_size":20,"limit":15}`)
	if status != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d: %v", status, body)
	}
	items, _ := body["items"].([]interface{})
	if len(items) != 15 {
		t.Errorf("期望15条, 得到 %d", len(items))
	}
	if body["next_cursor"] != "2" {
		t.Errorf("期望续爬页码 2, 得到 %v", body["next_cursor"])
	}

	status, body = do(t, http.MethodPost, srv.URL+"/api/crawl/search", `{"platform":"p1","keywords":["咖啡"],"since":"2024/05/01"}`)
	if status != http.StatusBadRequest {
		t.Errorf("日期格式错误期望 400, 得到 %d: %v", status, body)
	}
}

func TestCrawlSearch_EmptyIsNotError(t *testing.T) {
	srv := newTestServer(t, &fakeLogin{}, mock.NewAdapter())

	status, body := do(t, http.MethodPost, srv.URL+"/api/crawl/search", `{"platform":"p1","keywords":["无结果"]}`)
	if status != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", status)
	}
	items, ok := body["items"].([]interface{})
	if !ok || len(items) != 0 {
		t.Errorf("空结果应返回 items: [], 得到 %v", body)
	}
	if _, hasErr := body["error"]; hasErr {
		t.Error("空结果不应带错误")
	}
}

func TestCrawlDetail_Partial(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(3, "kw")
	a.FailDetail["item-002"] = &models.HardAPIError{Platform: "p1", Endpoint: "/detail", StatusCode: 500}
	srv := newTestServer(t, &fakeLogin{}, a)

	status, body := do(t, http.MethodPost, srv.URL+"/api/crawl/detail",
		`{"platform":"p1","ids":["item-001","item-002","item-003"],"concurrency":1}`)
	if status != http.StatusBadGateway {
		t.Fatalf("期望 502, 得到 %d: %v", status, body)
	}
	items, _ := body["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("部分结果应随错误返回, 得到 %d 条", len(items))
	}
	e, _ := body["error"].(map[string]interface{})
	if e["code"] != "PLATFORM_API_FAILED" || e["collected"] != float64(1) {
		t.Errorf("错误信息不符: %v", e)
	}
}

func TestCrawlCreatorAndComments(t *testing.T) {
	a := mock.NewAdapter()
	a.Creators["c1"] = models.Creator{ID: "c1", Nickname: "作者"}
	a.GenerateComments("item-001", 3, 2)
	srv := newTestServer(t, &fakeLogin{}, a)

	status, body := do(t, http.MethodPost, srv.URL+"/api/crawl/creator", `{"platform":"p1","creator_ids":["c1"]}`)
	if status != http.StatusBadRequest {
		t.Errorf("缺少 mode 期望 400, 得到 %d", status)
	}

	status, body = do(t, http.MethodPost, srv.URL+"/api/crawl/creator", `{"platform":"p1","creator_ids":["c1"],"mode":"profile"}`)
	if status != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d: %v", status, body)
	}
	if creators, _ := body["creators"].([]interface{}); len(creators) != 1 {
		t.Errorf("期望1个创作者, 得到 %v", body)
	}

	status, body = do(t, http.MethodPost, srv.URL+"/api/crawl/comments",
		`{"platform":"p1","ids":["item-001"],"recurse_subcomments":true,"max_comments":10}`)
	if status != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d: %v", status, body)
	}
	comments, _ := body["comments"].(map[string]interface{})
	if list, _ := comments["item-001"].([]interface{}); len(list) != 9 {
		t.Errorf("期望 3+6 条评论, 得到 %d", len(list))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeLogin{}, mock.NewAdapter())

	status, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("健康检查不符: %d %v", status, body)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "test_counter_total") {
		t.Errorf("/metrics 应包含已注册的指标")
	}
}
