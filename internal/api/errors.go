package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// errorBody 统一错误格式
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Cursor 部分失败时的续爬游标
	Cursor    string `json:"cursor,omitempty"`
	Collected int    `json:"collected,omitempty"`
}

// classify 错误到HTTP状态码与错误码的映射
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrUnknownPlatform):
		return http.StatusNotFound, "UNKNOWN_PLATFORM"
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, models.ErrNotLoggedIn):
		return http.StatusUnauthorized, "NOT_LOGGED_IN"
	case errors.Is(err, models.ErrAuthExpired):
		return http.StatusUnauthorized, "AUTH_EXPIRED"
	case errors.Is(err, models.ErrSoftRiskControl):
		return http.StatusTooManyRequests, "RISK_CONTROL"
	case errors.Is(err, models.ErrLaunch):
		return http.StatusServiceUnavailable, "BROWSER_LAUNCH_FAILED"
	case errors.Is(err, models.ErrLoginTimeout):
		return http.StatusGatewayTimeout, "LOGIN_TIMEOUT"
	case errors.Is(err, models.ErrLoginExpired):
		return http.StatusConflict, "LOGIN_EXPIRED"
	case errors.Is(err, models.ErrLoginFailed):
		return http.StatusBadGateway, "LOGIN_FAILED"
	case errors.Is(err, models.ErrHardAPIFailure):
		return http.StatusBadGateway, "PLATFORM_API_FAILED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return 499, "CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// newErrorBody 构造错误体, PartialError 附带游标
func newErrorBody(err error) (int, *errorBody) {
	status, code := classify(err)
	body := &errorBody{Code: code, Message: err.Error()}
	var pe *models.PartialError
	if errors.As(err, &pe) {
		body.Cursor = pe.Cursor
		body.Collected = pe.Collected
	}
	return status, body
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := newErrorBody(err)
	if status >= 500 {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("请求处理失败")
	} else {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("请求被拒绝")
	}
	writeJSON(w, status, body)
}
