package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/RecoveryAshes/MediaCrawler/internal/login"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

type startLoginRequest struct {
	Platform  string `json:"platform"`
	LoginType string `json:"login_type"`
	Phone     string `json:"phone,omitempty"`
	Cookie    string `json:"cookie,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// sessionResponse StartLogin 与 GetSessionStatus 共用的响应
// qr_code_base64 始终是不带 data: 前缀的纯base64
type sessionResponse struct {
	SessionID       string            `json:"session_id"`
	Platform        string            `json:"platform"`
	LoginType       string            `json:"login_type"`
	Status          string            `json:"status"`
	Message         string            `json:"message"`
	QRCodeBase64    string            `json:"qr_code_base64,omitempty"`
	QRCodeTimestamp float64           `json:"qrcode_timestamp,omitempty"`
	Elapsed         float64           `json:"elapsed"`
	Identity        map[string]string `json:"identity,omitempty"`
	Error           *errorBody        `json:"error,omitempty"`
}

func toSessionResponse(sess *models.LoginSession, now time.Time) sessionResponse {
	resp := sessionResponse{
		SessionID:    sess.ID,
		Platform:     sess.Platform.String(),
		LoginType:    string(sess.LoginType),
		Status:       sess.Status.PublicStatus(),
		Message:      sess.Message,
		QRCodeBase64: sess.QRCode,
		Identity:     sess.Identity,
	}
	if !sess.QRIssuedAt.IsZero() {
		resp.QRCodeTimestamp = float64(sess.QRIssuedAt.UnixMilli()) / 1000
	}
	end := now
	if !sess.FinishedAt.IsZero() {
		end = sess.FinishedAt
	}
	resp.Elapsed = end.Sub(sess.CreatedAt).Seconds()
	return resp
}

// startLogin POST /api/login/start
func (s *Server) startLogin(w http.ResponseWriter, r *http.Request) {
	var req startLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := models.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := models.ParseLoginType(req.LoginType)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := s.deps.Login.StartLogin(r.Context(), login.StartRequest{
		Platform:  p,
		LoginType: kind,
		Cookie:    req.Cookie,
		Phone:     req.Phone,
		Force:     req.Force,
	})
	if sess == nil {
		writeError(w, r, err)
		return
	}

	// 会话已创建但失败时返回会话本身, message 中带有原因
	resp := toSessionResponse(sess, time.Now())
	status := http.StatusOK
	if err != nil {
		status, resp.Error = newErrorBody(err)
	}
	writeJSON(w, status, resp)
}

// sessionStatus GET /api/login/sessions/{id}
func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Login.GetStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess, time.Now()))
}

type submitCodeRequest struct {
	Code string `json:"code"`
}

// submitCode POST /api/login/sessions/{id}/code
func (s *Server) submitCode(w http.ResponseWriter, r *http.Request) {
	var req submitCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Login.SubmitPhoneCode(id, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.deps.Login.GetStatus(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toSessionResponse(sess, time.Now()))
}

type logoutResponse struct {
	OK       bool   `json:"ok"`
	Platform string `json:"platform"`
	Message  string `json:"message"`
}

// logout POST /api/login/logout/{platform}
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	p, err := models.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Login.Logout(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logoutResponse{OK: true, Platform: p.String(), Message: "已退出登录"})
}

// listSessions GET /api/login/sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Login.ListSessions(r.Context())
	if list == nil {
		list = []models.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}
