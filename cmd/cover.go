package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"CoverFM/core/delivery"
	"CoverFM/core/pipeline"
	"CoverFM/model"

	"github.com/spf13/cobra"
)

var (
	coverChoose  int
	coverQuality int
	coverTarget  string
	coverGroup   bool
)

var coverCmd = &cobra.Command{
	Use:   "cover <歌曲名>",
	Short: "生成一首翻唱",
	Long:  `在命令行执行完整的翻唱流水线：获取、分离、变声、混音。指定 --to 时把结果发送到 QQ。`,
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

		quality := coverQuality
		if quality <= 0 {
			quality = cfg.DefaultQuality
		}
		req := model.TrackRequest{Query: strings.Join(args, " "), SelectorIndex: coverChoose, Quality: quality}

		res := a.orch.Cover(ctx, req, printEvent)
		report(cmd, res)
		deliverResult(ctx, a.napcat, coverTarget, coverGroup, res)
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	},
}

func printEvent(ev pipeline.Event) {
	line := fmt.Sprintf("[%s] %s", ev.Stage, ev.Status)
	if ev.Path != "" {
		line += " " + ev.Path
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	fmt.Println(line)
}

func report(cmd *cobra.Command, res pipeline.Result) {
	if res.Success {
		cached := ""
		if res.Cached {
			cached = " (缓存)"
		}
		cmd.Printf("完成%s: %s, 耗时 %s\n", cached, res.FinalPath, res.Elapsed.Round(time.Millisecond))
		return
	}
	cmd.Printf("失败于 %s [%s]: %s\n", res.Stage, res.ErrorKind, res.Message)
	if res.Screenshot != "" {
		cmd.Printf("截图: %s\n", res.Screenshot)
	}
}

func deliverResult(ctx context.Context, client *delivery.Client, to string, group bool, res pipeline.Result) {
	if to == "" {
		return
	}
	target := delivery.Target{ID: to, IsGroup: group}
	var err error
	if res.Success {
		_, err = client.SendRecord(ctx, target, res.FinalPath)
	} else {
		_, err = client.SendText(ctx, target, res.Message)
	}
	if err != nil {
		fmt.Printf("发送到 %s 失败: %v\n", target, err)
	}
}

func init() {
	coverCmd.Flags().IntVarP(&coverChoose, "choose", "c", 0, "候选序号，0 表示自动")
	coverCmd.Flags().IntVarP(&coverQuality, "quality", "q", 0, "音质，默认读取 DEFAULT_QUALITY")
	coverCmd.Flags().StringVar(&coverTarget, "to", "", "发送到的 QQ 号或群号")
	coverCmd.Flags().BoolVarP(&coverGroup, "group", "g", false, "--to 是群号")
	coverCmd.Example = `  coverfm cover 晴天
  coverfm cover 晴天 -c 2 --to 123456 -g`
	rootCmd.AddCommand(coverCmd)
}
