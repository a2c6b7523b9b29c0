package server

import (
	"encoding/json"
	"net/http"

	"CoverFM/core/errs"
	"CoverFM/logger"
)

// errorResponse 统一的错误响应
type errorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusForKind 流水线错误类别对应的 HTTP 状态码
func statusForKind(kind string) int {
	switch kind {
	case errs.KindNotFound.String():
		return http.StatusNotFound
	case errs.KindTimeout.String():
		return http.StatusGatewayTimeout
	case errs.KindPrecondition.String():
		return http.StatusBadRequest
	case errs.KindRemoteTool.String():
		return http.StatusBadGateway
	case errs.KindCanceled.String():
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
