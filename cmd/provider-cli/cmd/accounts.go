package cmd

import (
	"fmt"

	"wallet-provider/internal/signer"
	"wallet-provider/pkg/keystore"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "列出 keyring 派生的账户 (离线)",
	Run: func(cmd *cobra.Command, args []string) {
		count, _ := cmd.Flags().GetInt("count")
		path, _ := cmd.Flags().GetString("path")

		vault, err := keystore.LoadFromFile(keystorePath)
		if err != nil {
			fail("读取 keyring 失败: %v", err)
		}
		kr, err := signer.NewHDKeyring(vault, path, count)
		if err != nil {
			fail("%v", err)
		}
		if err := kr.Unlock(readPassword("输入密码: ")); err != nil {
			fail("解锁失败: %v", err)
		}
		defer kr.Lock()

		for i, a := range kr.Accounts() {
			fmt.Printf("%d  %s\n", i, a.Hex())
		}
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.Flags().IntP("count", "n", 5, "派生账户数量")
	accountsCmd.Flags().String("path", signer.DefaultBasePath, "派生路径前缀")
}
