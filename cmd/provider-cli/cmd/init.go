package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"wallet-provider/internal/signer"
	"wallet-provider/pkg/keystore"

	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "初始化一个新的 keyring (生成或导入助记词并加密保存)",
	Long:  `生成新的 BIP-39 助记词 (或使用 --import 导入已有助记词)，用密码加密后保存为 keyring 文件，供 provider-server 加载。`,
	Run: func(cmd *cobra.Command, args []string) {
		importing, _ := cmd.Flags().GetBool("import")
		words, _ := cmd.Flags().GetInt("words")

		if _, err := os.Stat(keystorePath); err == nil {
			fail("错误: 文件 %s 已存在。请先删除或指定其他文件名。", keystorePath)
		}

		// 1. 助记词
		var mnemonic string
		if importing {
			mnemonic = strings.TrimSpace(readPassword("输入助记词: "))
			if !bip39.IsMnemonicValid(mnemonic) {
				fail("助记词无效")
			}
		} else {
			bits := 128
			if words == 24 {
				bits = 256
			}
			var err error
			if mnemonic, err = signer.GenerateMnemonic(bits); err != nil {
				fail("生成助记词失败: %v", err)
			}
		}

		// 2. 输入密码
		fmt.Println("请设置一个强密码来保护您的助记词。")
		password := readPassword("输入密码: ")
		if password != readPassword("确认密码: ") {
			fail("两次输入的密码不一致！")
		}
		if len(password) < 6 {
			fail("密码长度至少需要 6 位。")
		}

		// 3. 加密并保存
		vault, err := keystore.EncryptMnemonic(mnemonic, password, keystore.StandardParams)
		if err != nil {
			fail("加密失败: %v", err)
		}
		if err := vault.SaveToFile(keystorePath); err != nil {
			fail("保存文件失败: %v", err)
		}

		// 4. 展示第一个账户
		kr, err := signer.NewHDKeyring(vault, "", 1)
		if err == nil && kr.Unlock(password) == nil {
			fmt.Printf("默认账户: %s\n", kr.Accounts()[0].Hex())
			kr.Lock()
		}
		fmt.Printf("\n✅ Keyring 已初始化！\n")
		fmt.Printf("文件位置: %s\n", keystorePath)
		fmt.Printf("您的 ID: %s\n", vault.Id)

		if importing {
			return
		}
		fmt.Print("\n是否需要现在显示助记词以便备份? (y/N): ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(strings.ToLower(input)) == "y" {
			fmt.Printf("\n%s\n\n⚠️  请离线抄写保存，不要截图。\n", mnemonic)
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("import", false, "导入已有助记词")
	initCmd.Flags().Int("words", 12, "助记词长度 (12 或 24)")
}
