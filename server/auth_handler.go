package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"CoverFM/logger"
)

type ctxKey string

const clientIDKey ctxKey = "clientID"

// TokenRequest 换取令牌
type TokenRequest struct {
	ClientID string `json:"clientId"`
	Secret   string `json:"secret"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.deps.Issuer == nil {
		writeError(w, http.StatusNotImplemented, "未启用鉴权")
		return
	}
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求格式错误")
		return
	}
	token, expires, err := s.deps.Issuer.Exchange(req.ClientID, req.Secret)
	if err != nil {
		logger.Warn("令牌签发被拒绝", logger.String("clientId", req.ClientID))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires})
}

// bearerToken 从 Authorization 头读取令牌；websocket 无法设置请求头时从 token 参数读取
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Issuer == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "缺少令牌")
			return
		}
		claims, err := s.deps.Issuer.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "无效的令牌")
			return
		}
		ctx := context.WithValue(r.Context(), clientIDKey, claims.ClientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIDFromContext 已认证的客户端 ID
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey).(string)
	return id
}
