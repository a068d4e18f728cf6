package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"CineFM/core/preload"

	"github.com/spf13/cobra"
)

var (
	profileEffectiveType string
	profileDownlink      float64
	profileMemory        float64
	profileSaveData      bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "预加载策略检查",
	Long:  `输入网络条件，输出预加载子系统将采用的策略档位，便于调试客户端信令。`,
	Run: func(cmd *cobra.Command, args []string) {
		signals := preload.NetworkSignals{
			EffectiveType:  profileEffectiveType,
			SaveData:       profileSaveData,
			DownlinkMbps:   profileDownlink,
			DeviceMemoryGB: profileMemory,
		}

		profile := preload.NewProfileResolver().Resolve(signals)

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(profile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)

	profileCmd.Flags().StringVarP(&profileEffectiveType, "effective-type", "t", preload.ConnectionUnknown, "网络类型: slow-2g, 2g, 3g, 4g, unknown")
	profileCmd.Flags().Float64VarP(&profileDownlink, "downlink", "d", 0, "下行带宽估计 (Mbps)")
	profileCmd.Flags().Float64VarP(&profileMemory, "memory", "g", 0, "设备内存 (GB)")
	profileCmd.Flags().BoolVar(&profileSaveData, "save-data", false, "省流量模式")

	profileCmd.Example = `  # 4G 高带宽大内存设备
  cinefm_player profile -t 4g -d 10 -g 8

  # 省流量模式
  cinefm_player profile --save-data`
}
