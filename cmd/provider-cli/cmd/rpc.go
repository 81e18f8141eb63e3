package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/spf13/cobra"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc <method> [params-json]",
	Short: "以 dapp 身份向 provider-server 发送 JSON-RPC 请求",
	Long: `例如:
  provider-cli rpc eth_requestAccounts --origin https://app.example
  provider-cli rpc personal_sign '["0x68656c6c6f","0x..."]'

审批类请求会一直等待，直到在钱包 UI (或 provider-cli approvals) 中作答。`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		origin, _ := cmd.Flags().GetString("origin")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		// 1. 解析参数
		var params []json.RawMessage
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
				fail("params 必须是 JSON 数组: %v", err)
			}
		}
		callArgs := make([]interface{}, len(params))
		for i, p := range params {
			callArgs[i] = p
		}

		// 2. 连接 provider-server
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		endpoint := strings.TrimRight(serverURL, "/") + "/api/v1/rpc"
		client, err := rpc.DialOptions(ctx, endpoint, rpc.WithHeader("Origin", origin))
		if err != nil {
			fail("连接失败: %v", err)
		}
		defer client.Close()

		// 3. 调用
		var result json.RawMessage
		if err := client.CallContext(ctx, &result, args[0], callArgs...); err != nil {
			if rpcErr, ok := err.(rpc.Error); ok {
				fail("❌ %d %s", rpcErr.ErrorCode(), rpcErr.Error())
			}
			fail("❌ %v", err)
		}
		fmt.Println(string(result))
	},
}

func init() {
	rootCmd.AddCommand(rpcCmd)
	rpcCmd.Flags().String("origin", "https://cli.local", "dapp origin")
	rpcCmd.Flags().Duration("timeout", 5*time.Minute, "等待审批的最长时间")
}
