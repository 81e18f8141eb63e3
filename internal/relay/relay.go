package relay

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PushStatus 中继受理结果
type PushStatus string

const (
	PushAccepted PushStatus = "accepted"
	PushFailed   PushStatus = "failed"
)

// SubmitRequest 已签名的原始交易
type SubmitRequest struct {
	ChainID uint64         `json:"chain_id"`
	From    common.Address `json:"from"`
	Nonce   uint64         `json:"nonce"`
	RawTx   hexutil.Bytes  `json:"raw_tx"`
}

// SubmitResult Hash 和 TrackingID 可能只有其中一个
type SubmitResult struct {
	Hash       *common.Hash `json:"hash,omitempty"`
	TrackingID string       `json:"tracking_id,omitempty"`
	PushStatus PushStatus   `json:"push_status"`
	Reason     string       `json:"reason,omitempty"`
}

func (r SubmitResult) Failed() bool {
	return r.PushStatus == PushFailed
}

// Relay 广播已签名交易
type Relay interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
}

// Status tracking id 的解析结果; Hash 为空表示中继还在处理
type Status struct {
	TrackingID string       `json:"tracking_id"`
	Hash       *common.Hash `json:"hash,omitempty"`
	Failed     bool         `json:"failed"`
	Reason     string       `json:"reason,omitempty"`
}

// Tracker 查询 tracking id 对应的链上 hash
type Tracker interface {
	Status(ctx context.Context, trackingID string) (Status, error)
}
