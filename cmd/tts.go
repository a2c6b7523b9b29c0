package cmd

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	ttsTarget string
	ttsGroup  bool
)

var ttsCmd = &cobra.Command{
	Use:   "tts <文本>",
	Short: "文字转语音",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildPipeline(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		res := a.orch.Speech(ctx, strings.Join(args, " "), printEvent)
		report(cmd, res)
		deliverResult(ctx, a.napcat, ttsTarget, ttsGroup, res)
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	},
}

func init() {
	ttsCmd.Flags().StringVar(&ttsTarget, "to", "", "发送到的 QQ 号或群号")
	ttsCmd.Flags().BoolVarP(&ttsGroup, "group", "g", false, "--to 是群号")
	rootCmd.AddCommand(ttsCmd)
}
