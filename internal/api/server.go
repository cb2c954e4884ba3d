// Package api 通过HTTP暴露登录控制协议与采集操作
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/browser"
	"github.com/RecoveryAshes/MediaCrawler/internal/crawlers"
	"github.com/RecoveryAshes/MediaCrawler/internal/login"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// LoginService 登录控制协议依赖的服务
type LoginService interface {
	StartLogin(ctx context.Context, req login.StartRequest) (*models.LoginSession, error)
	GetStatus(sessionID string) (*models.LoginSession, error)
	SubmitPhoneCode(sessionID, code string) error
	Logout(ctx context.Context, p models.Platform) error
	ListSessions(ctx context.Context) []models.SessionSummary
}

// Crawler 采集操作
type Crawler interface {
	Search(ctx context.Context, req crawlers.SearchRequest) (*crawlers.SearchResult, error)
	Detail(ctx context.Context, req crawlers.DetailRequest) (*crawlers.DetailResult, error)
	CreatorFeed(ctx context.Context, req crawlers.CreatorRequest) (*crawlers.CreatorResult, error)
	Comments(ctx context.Context, req crawlers.CommentsRequest) (*crawlers.CommentsResult, error)
}

// BrowserStats 浏览器运行状态(可选)
type BrowserStats interface {
	Stats() []browser.PlatformStats
}

// Deps 路由依赖
type Deps struct {
	Login    LoginService
	Crawler  Crawler
	Browsers BrowserStats
	Gatherer prometheus.Gatherer
	// Location 解析 since/until 日期使用的时区, 默认本地时区
	Location *time.Location
}

// Server HTTP服务
type Server struct {
	deps   Deps
	router chi.Router
}

// NewServer 创建HTTP服务并注册路由
func NewServer(deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	s := &Server{deps: deps}
	s.router = s.routes()
	return s
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/login", func(r chi.Router) {
		r.Post("/start", s.startLogin)
		r.Get("/sessions", s.listSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.sessionStatus)
			r.Post("/code", s.submitCode)
		})
		r.Post("/logout/{platform}", s.logout)
	})

	r.Route("/api/crawl", func(r chi.Router) {
		r.Post("/search", s.search)
		r.Post("/detail", s.detail)
		r.Post("/creator", s.creator)
		r.Post("/comments", s.comments)
	})
	return r
}

// ListenAndServe 启动服务, ctx 取消后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP服务启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("正在关闭HTTP服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if s.deps.Browsers != nil {
		body["browsers"] = s.deps.Browsers.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// requestLogger 记录每个请求的方法、路径、状态码与耗时
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP请求")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Warn().Err(err).Msg("写入响应失败")
	}
}

// decodeJSON 解析请求体, 拒绝未知字段
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Reason: "请求体不是合法的JSON: " + err.Error()}
	}
	return nil
}
