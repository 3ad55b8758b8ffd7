package cmd

import (
	"Resona/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动Resona服务器",
	Long:  `启动Resona协作音频编辑系统的HTTP服务器，提供编辑API、同步与事件推送`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
