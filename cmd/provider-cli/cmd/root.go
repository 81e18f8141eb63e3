package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	keystorePath string
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "provider-cli",
	Short: "钱包 Provider 命令行工具",
	Long: `管理本地 keyring，并作为钱包 UI 与 provider-server 交互：
发送 JSON-RPC 请求、查看并处理待审批请求。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "provider-server 地址")
	rootCmd.PersistentFlags().StringVarP(&keystorePath, "keystore", "k", "keyring.json", "Keyring 文件")
}
