package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"CoverFM/core/auth"
	"CoverFM/core/delivery"
	"CoverFM/core/pipeline"
	"CoverFM/logger"
	"CoverFM/model"

	"github.com/gorilla/mux"
)

// JobService 异步任务
type JobService interface {
	SubmitCover(ctx context.Context, req model.TrackRequest, target *delivery.Target) (*model.CoverJob, error)
	SubmitSpeech(ctx context.Context, text string, target *delivery.Target) (*model.CoverJob, error)
	Get(ctx context.Context, id string) (*model.CoverJob, error)
	List(ctx context.Context, limit int) ([]*model.CoverJob, error)
	Subscribe(id string) (<-chan pipeline.Event, func(), bool)
}

// Synthesizer 同步文字转语音
type Synthesizer interface {
	Speech(ctx context.Context, text string, obs pipeline.Observer) pipeline.Result
}

// MusicSharer 发送音乐卡片
type MusicSharer interface {
	SendMusicCard(ctx context.Context, target delivery.Target, musicType, musicID string) (delivery.Receipt, error)
}

// Deps 路由依赖，Issuer 为 nil 时不校验令牌
type Deps struct {
	Jobs     JobService
	Speech   Synthesizer
	Sharer   MusicSharer
	Issuer   *auth.TokenIssuer
	Search   http.HandlerFunc
	Defaults model.TrackRequest
}

// Server HTTP API
type Server struct {
	deps Deps
}

// New 创建服务
func New(deps Deps) *Server {
	if deps.Issuer == nil {
		logger.Warn("未配置 JWT_SECRET，API 不做鉴权")
	}
	return &Server{deps: deps}
}

// Router 注册所有路由
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/token", s.handleToken).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/cover", s.handleCover).Methods(http.MethodPost)
	api.HandleFunc("/tts", s.handleSpeech).Methods(http.MethodPost)
	api.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	if s.deps.Search != nil {
		api.HandleFunc("/netease/search", s.deps.Search).Methods(http.MethodGet)
	}
	if s.deps.Sharer != nil {
		api.HandleFunc("/netease/share", s.handleShare).Methods(http.MethodPost)
	}

	ws := router.PathPrefix("/ws").Subrouter()
	ws.Use(s.authMiddleware)
	ws.HandleFunc("/jobs/{id}", s.handleJobEvents)

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run 监听 addr，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		// 同步 TTS 需要等待 WebUI 生成
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务启动", logger.String("addr", addr))
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

	logger.Info("正在关闭 HTTP 服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP 服务已停止")
	return nil
}
