package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"CoverFM/core/auth"
	"CoverFM/core/netease"
	"CoverFM/logger"
	"CoverFM/model"
	"CoverFM/server"

	"github.com/spf13/cobra"
)

var serverAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 CoverFM HTTP 服务",
	Long:  `启动 HTTP API：提交翻唱任务、同步 TTS、查询任务和 websocket 进度推送`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if serverAddr != "" {
			cfg.ServerAddr = serverAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildPipeline(cfg)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.withManager(ctx); err != nil {
			return err
		}

		var issuer *auth.TokenIssuer
		if cfg.JWTSecret != "" {
			issuer, err = auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, cfg.APIClientID, cfg.APISecretHash)
			if err != nil {
				return err
			}
		}

		srv := server.New(server.Deps{
			Jobs:     a.manager,
			Speech:   a.orch,
			Sharer:   a.napcat,
			Issuer:   issuer,
			Search:   netease.NewNeteaseHandler(a.acquirer).HandleSearch,
			Defaults: model.TrackRequest{Quality: cfg.DefaultQuality},
		})
		runErr := srv.Run(ctx, cfg.ServerAddr)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("等待任务退出超时", logger.ErrorField(err))
		}
		return runErr
	},
}

func init() {
	serverCmd.Flags().StringVarP(&serverAddr, "addr", "a", "", "监听地址，默认读取 SERVER_ADDR")
	rootCmd.AddCommand(serverCmd)
}
