package cmd

import (
	"fmt"
	"os"

	"CineFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cinefm_player",
	Short: "CineFM 是一个带自适应预加载的音乐播放服务",
	Long: `CineFM 音乐播放节点：管理播放队列，按网络条件自适应地把即将
播放的音频预下载到内存缓存，让切歌立刻出声。`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
