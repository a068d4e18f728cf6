package cmd

import (
	"CineFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动CineFM播放服务",
	Long:  `启动CineFM播放节点的HTTP服务器，提供队列管理、预加载信令与缓存音频服务`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
