package cmd

import (
	"context"
	"fmt"
	"time"

	"CoverFM/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix  string
	minioStats   bool
	minioPublish string
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看已发布的成品，或手动发布一个本地文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		pub, err := storage.NewPublisher(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}

		if minioPublish != "" {
			u, err := pub.Publish(ctx, minioPublish)
			if err != nil {
				return err
			}
			cmd.Printf("已发布: %s\n", u)
			return nil
		}

		objects, stats, err := pub.List(ctx, minioPrefix, true)
		if err != nil {
			return err
		}
		cmd.Printf("存储桶: %s\n对象数量: %d\n总大小: %s\n", pub.Bucket(), stats.TotalObjects, storage.FormatSize(stats.TotalSize))
		if !stats.LastModified.IsZero() {
			cmd.Printf("最后修改时间: %s\n", stats.LastModified.Format(time.RFC3339))
		}
		if minioStats {
			for category, size := range storage.Usage(objects) {
				cmd.Printf("  %s: %s\n", category, storage.FormatSize(size))
			}
			return nil
		}
		for _, obj := range objects {
			cmd.Printf("  %s  %s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", storage.CoverPrefix, "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "按类型统计占用")
	minioCmd.Flags().StringVar(&minioPublish, "publish", "", "发布指定的本地文件")
	minioCmd.Example = `  coverfm minio
  coverfm minio -s -p ""
  coverfm minio --publish cache/work/晴天_changed.wav`
	rootCmd.AddCommand(minioCmd)
}
