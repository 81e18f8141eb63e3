package approval

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind 审批类型，决定 UI 展示哪种确认页
type Kind string

const (
	KindUnlock        Kind = "unlock"
	KindConnect       Kind = "connect"
	KindAddChain      Kind = "add_chain"
	KindSignText      Kind = "sign_text"
	KindSignTypedData Kind = "sign_typed_data"
	KindSignTx        Kind = "sign_tx"
	KindAddAsset      Kind = "add_asset"
	// KindSignerConfirm 硬件签名器上的二次确认，是 sign_tx 的后续步骤
	KindSignerConfirm Kind = "signer_confirm"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

// Ticket 一次等待用户确认的请求，结束后即销毁
type Ticket struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Origin    string                 `json:"origin"`
	Name      string                 `json:"name,omitempty"`
	Icon      string                 `json:"icon,omitempty"`
	Params    interface{}            `json:"params,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Status    Status                 `json:"status"`
	Payload   json.RawMessage        `json:"payload,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Decision 用户对 Ticket 的处理结果
type Decision struct {
	Approved bool            `json:"approved"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// ErrDismissed 用户关闭了确认页但没有做出选择
var ErrDismissed = errors.New("approval dismissed")

// Surface 审批 UI 的唯一入口
// Present 阻塞直到用户做出选择、ctx 取消或被 Dismiss
type Surface interface {
	Present(ctx context.Context, t *Ticket) (Decision, error)
	Dismiss(id string)
}
