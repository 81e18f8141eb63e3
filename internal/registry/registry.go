package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"wallet-provider/internal/approval"
	"wallet-provider/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
)

// Capability 方法的敏感级别
type Capability int

const (
	// Safe 只读，不经过任何闸门
	Safe Capability = iota
	// Private 需要钱包已解锁且 origin 已连接，但不单独弹审批
	Private
	// RequiresApproval 全部闸门，包括一次用户审批
	RequiresApproval
)

func (c Capability) String() string {
	switch c {
	case Safe:
		return "safe"
	case Private:
		return "private"
	case RequiresApproval:
		return "requires_approval"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Call 传给 Validator 的上下文，只包含分发时读取到的快照
type Call struct {
	Method  string
	Params  json.RawMessage
	Origin  string
	Account common.Address // 当前激活账户
	ChainID uint64         // origin 已连接的链
}

// Validator 在展示审批前运行
// 返回 true 表示无需弹窗直接通过；返回 error 则请求直接失败，不展示任何 UI
type Validator func(ctx context.Context, call Call) (bool, error)

// MethodDescriptor 启动时注册，之后只读
type MethodDescriptor struct {
	Name         string
	Capability   Capability
	ApprovalKind approval.Kind
	Validator    Validator
	// InternalOnly 只允许钱包自身的 origin 调用
	InternalOnly bool
	// Passthrough 未注册的链上只读查询，直接转发给节点
	Passthrough bool
	// Deprecated 已废弃的方法，固定返回 UnsupportedMethod
	Deprecated bool
}

// 链上查询的命名前缀
var queryPrefixes = []string{"eth_", "net_", "web3_"}

// 符合查询前缀但会改变状态或需要私钥的方法，不能透传
var nonQueryMethods = map[string]bool{
	"eth_sendRawTransaction": true,
	"eth_sendTransaction":    true,
	"eth_signTransaction":    true,
	"eth_sign":               true,
	"eth_submitWork":         true,
	"eth_submitHashrate":     true,
	"eth_subscribe":          true,
	"eth_unsubscribe":        true,
}

// Registry 方法表。New 之后不可修改
type Registry struct {
	methods map[string]MethodDescriptor
}

func New(descs ...MethodDescriptor) (*Registry, error) {
	r := &Registry{methods: make(map[string]MethodDescriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("registry: descriptor without name")
		}
		if _, dup := r.methods[d.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate method %s", d.Name)
		}
		if d.Capability == RequiresApproval && d.ApprovalKind == "" {
			return nil, fmt.Errorf("registry: %s requires approval but has no kind", d.Name)
		}
		r.methods[d.Name] = d
	}
	return r, nil
}

// Classify 返回方法的描述符
func (r *Registry) Classify(method string) (MethodDescriptor, error) {
	if d, ok := r.methods[method]; ok {
		if d.Deprecated {
			return MethodDescriptor{}, errno.ErrUnsupportedMethod.WithMessagef("%s is not supported", method)
		}
		return d, nil
	}
	if IsChainQuery(method) {
		return MethodDescriptor{Name: method, Capability: Safe, Passthrough: true}, nil
	}
	return MethodDescriptor{}, errno.ErrMethodNotFound.WithMessagef("the method %s does not exist/is not available", method)
}

// Methods 已注册的方法名，按字母排序
func (r *Registry) Methods() []string {
	out := make([]string, 0, len(r.methods))
	for name := range r.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsChainQuery 是否符合链上只读查询的命名约定
func IsChainQuery(method string) bool {
	if nonQueryMethods[method] {
		return false
	}
	for _, p := range queryPrefixes {
		if strings.HasPrefix(method, p) && len(method) > len(p) {
			return true
		}
	}
	return false
}
