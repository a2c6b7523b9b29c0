package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "coverfm",
	Short: "CoverFM 是一个 AI 翻唱机器人后端",
	Long:  `CoverFM 搜索并下载歌曲，经由 MSST 分离人声、Gradio 变声后混音，并通过 Napcat 发送到 QQ。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverCmd.RunE(cmd, args)
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
