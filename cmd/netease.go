package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"CoverFM/core/delivery"
	"CoverFM/model"

	"github.com/spf13/cobra"
)

var (
	searchChoose  int
	searchQuality int
	shareTarget   string
	shareGroup    bool
)

var neteaseCmd = &cobra.Command{
	Use:   "netease <歌曲名>",
	Short: "点歌：查询歌曲信息",
	Long:  `调用搜索 API 查询歌曲，打印歌名、歌手和播放地址。指定 --to 时以音乐卡片发送到 QQ。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		acq, rdb, err := newAcquirer(cfg)
		if err != nil {
			return err
		}
		if rdb != nil {
			defer rdb.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		quality := searchQuality
		if quality <= 0 {
			quality = cfg.DefaultQuality
		}
		info, used, err := acq.Resolve(ctx, model.TrackRequest{
			Query:         strings.Join(args, " "),
			SelectorIndex: searchChoose,
			Quality:       quality,
		})
		if err != nil {
			return err
		}

		cmd.Printf("序号: %d\n歌名: %s\n歌手: %s\n专辑: %s\n音质: %s\n地址: %s\n",
			used, info.Song, info.Singer, info.Album, info.Quality, info.URL)

		if shareTarget == "" {
			return nil
		}
		if info.ID == 0 {
			return fmt.Errorf("搜索结果没有歌曲 ID，无法发送卡片")
		}
		client := delivery.NewClient(cfg.NapcatURL, cfg.NapcatToken)
		receipt, err := client.SendMusicCard(ctx, delivery.Target{ID: shareTarget, IsGroup: shareGroup}, "163", strconv.FormatInt(info.ID, 10))
		if err != nil {
			return err
		}
		cmd.Printf("已发送，消息 ID: %s\n", receipt.MessageID)
		return nil
	},
}

func init() {
	neteaseCmd.Flags().IntVarP(&searchChoose, "choose", "c", 0, "候选序号，0 表示自动")
	neteaseCmd.Flags().IntVarP(&searchQuality, "quality", "q", 0, "音质")
	neteaseCmd.Flags().StringVar(&shareTarget, "to", "", "发送音乐卡片到的 QQ 号或群号")
	neteaseCmd.Flags().BoolVarP(&shareGroup, "group", "g", false, "--to 是群号")
	rootCmd.AddCommand(neteaseCmd)
}
