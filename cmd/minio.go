package cmd

import (
	"context"
	"fmt"
	"log"

	"CineFM/config"
	"CineFM/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioMax    int
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "曲库存储桶查看",
	Long:  `查看曲库存储桶中的音频对象，支持按前缀过滤和显示统计信息。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		ctx := context.Background()

		if minioStats {
			stats, err := storage.GetLibraryStats(ctx)
			if err != nil {
				log.Fatalf("获取存储桶统计信息失败: %v", err)
			}
			fmt.Printf("\n存储桶: %s\n", storage.LibraryBucket())
			fmt.Printf("对象总数: %d\n", stats.TotalObjects)
			fmt.Printf("总大小: %s\n", formatObjectSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最近更新: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}
			return
		}

		objects, err := storage.ListLibraryObjects(ctx, minioPrefix, minioMax)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}
		if len(objects) == 0 {
			fmt.Println("\n存储桶为空或前缀下没有对象")
			return
		}

		fmt.Printf("\n共 %d 个对象:\n", len(objects))
		for _, obj := range objects {
			fmt.Printf("  %-60s %10s  %s\n",
				obj.Key,
				formatObjectSize(obj.Size),
				obj.LastModified.Format("2006-01-02 15:04"))
		}
	},
}

// formatObjectSize 人类可读的对象大小
func formatObjectSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤对象")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().IntVarP(&minioMax, "max", "m", 100, "最多列出的对象数量")

	minioCmd.Example = `  # 列出曲库中的音频对象
  cinefm_player minio -p "audio/"

  # 显示存储桶统计信息
  cinefm_player minio -s`
}
