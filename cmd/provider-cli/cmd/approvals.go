package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wallet-provider/internal/approval"
	"wallet-provider/internal/handler/response"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// call 调用 provider-server 的管理接口，解开 {code,msg,data} 信封
func call(method, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		response.Response
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("%d %s", env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func printTicket(t approval.Ticket) {
	fmt.Printf("[%s] %s  origin=%s", t.ID, t.Kind, t.Origin)
	if t.Name != "" {
		fmt.Printf(" (%s)", t.Name)
	}
	fmt.Println()
	if t.Params != nil {
		b, _ := json.MarshalIndent(t.Params, "    ", "  ")
		fmt.Printf("    %s\n", b)
	}
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "查看待审批请求",
	Run: func(cmd *cobra.Command, args []string) {
		var list []approval.Ticket
		if err := call(http.MethodGet, "/api/v1/approvals", nil, &list); err != nil {
			fail("查询失败: %v", err)
		}
		if len(list) == 0 {
			fmt.Println("没有待审批的请求")
			return
		}
		for _, t := range list {
			printTicket(t)
		}
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "同意审批",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		payload, _ := cmd.Flags().GetString("payload")
		if password, _ := cmd.Flags().GetBool("password"); password {
			b, _ := json.Marshal(map[string]string{"password": readPassword("输入密码: ")})
			payload = string(b)
		}

		body := map[string]interface{}{}
		if payload != "" {
			if !json.Valid([]byte(payload)) {
				fail("payload 不是合法的 JSON")
			}
			body["payload"] = json.RawMessage(payload)
		}
		if err := call(http.MethodPost, "/api/v1/approvals/"+args[0]+"/approve", body, nil); err != nil {
			fail("❌ %v", err)
		}
		fmt.Println("✅ 已同意")
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "拒绝审批",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		if err := call(http.MethodPost, "/api/v1/approvals/"+args[0]+"/reject", map[string]string{"reason": reason}, nil); err != nil {
			fail("❌ %v", err)
		}
		fmt.Println("已拒绝")
	},
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approveCmd, rejectCmd)
	approveCmd.Flags().String("payload", "", "审批附带的 JSON，例如 {\"nonce\":\"0x7\"}")
	approveCmd.Flags().Bool("password", false, "unlock 审批：交互式输入密码")
	rejectCmd.Flags().String("reason", "", "拒绝原因")
}
