package model

import (
	"time"
)

// 交易记录状态
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// PushKind 交易是通过什么途径发出的
const (
	PushKindRelay  = "relay"  // 中继受理
	PushKindSigner = "signer" // 签名器签名的同时已广播，直接返回 hash
)

// PendingTransaction 已提交的交易
// 只有中继受理成功 (或签名器直接返回 hash) 后才会写入
type PendingTransaction struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SigningID  string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"signing_id"` // 对应的 SigningTransaction，保证一次构建只落库一次
	Address    string    `gorm:"type:varchar(42);not null;index:idx_addr_chain_nonce" json:"address"`
	ChainID    uint64    `gorm:"not null;index:idx_addr_chain_nonce" json:"chain_id"`
	Nonce      uint64    `gorm:"not null;index:idx_addr_chain_nonce" json:"nonce"`
	Hash       string    `gorm:"type:varchar(66);index" json:"hash,omitempty"`
	TrackingID string    `gorm:"type:varchar(128);index" json:"tracking_id,omitempty"`
	PushKind   string    `gorm:"type:varchar(16);not null" json:"push_kind"`
	Origin     string    `gorm:"type:varchar(255);not null" json:"origin"`
	Action     string    `gorm:"type:varchar(32)" json:"action"`
	Explain    string    `gorm:"type:text" json:"explain"` // JSON, 供历史记录展示
	Pending    bool      `gorm:"not null;index" json:"pending"`
	Status     string    `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (PendingTransaction) TableName() string {
	return "pending_transactions"
}

// OutboxMessage 本地消息表 (Transactional Outbox)
// 生命周期通知先落库，再由 OutboxRelay 搬运到 MQ
type OutboxMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string    `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string    `gorm:"type:varchar(255)" json:"key"`
	Payload   []byte    `gorm:"not null" json:"payload"`
	Status    string    `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
