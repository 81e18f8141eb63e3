package store

import (
	"context"
	"errors"
	"fmt"

	"wallet-provider/internal/model"
	"wallet-provider/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// ErrTxNotFound 交易记录不存在
var ErrTxNotFound = errno.ErrNotFound.WithMessage("pending transaction not found")

// PendingStore 已提交交易及本地 nonce 历史
type PendingStore struct {
	db *gorm.DB
}

func NewPendingStore(db *gorm.DB) *PendingStore {
	return &PendingStore{db: db}
}

func (s *PendingStore) Create(ctx context.Context, tx *model.PendingTransaction) error {
	if tx.Status == "" {
		tx.Status = model.TxStatusPending
	}
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("create pending transaction: %w", err)
	}
	return nil
}

// HighestNonce (address, chain) 下本地记录的最大 nonce，失败的交易不计入
func (s *PendingStore) HighestNonce(ctx context.Context, addr common.Address, chainID uint64) (uint64, bool, error) {
	var rec model.PendingTransaction
	err := s.db.WithContext(ctx).
		Where("address = ? AND chain_id = ? AND status <> ?", addr.Hex(), chainID, model.TxStatusFailed).
		Order("nonce DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query highest nonce: %w", err)
	}
	return rec.Nonce, true, nil
}

// ResolveTracking 中继回推 tracking id 对应的 hash
func (s *PendingStore) ResolveTracking(ctx context.Context, trackingID string, hash common.Hash) (*model.PendingTransaction, error) {
	var rec model.PendingTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tracking_id = ?", trackingID).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTxNotFound
			}
			return err
		}
		rec.Hash = hash.Hex()
		return tx.Model(&rec).Update("hash", rec.Hash).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkStatus 确认或失败后不再 pending
func (s *PendingStore) MarkStatus(ctx context.Context, id uint64, status string) error {
	res := s.db.WithContext(ctx).Model(&model.PendingTransaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  status,
			"pending": status == model.TxStatusPending,
		})
	if res.Error != nil {
		return fmt.Errorf("mark transaction %d %s: %w", id, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTxNotFound
	}
	return nil
}

// ListPending 所有还在等待确认的交易 (启动时恢复 watcher)
func (s *PendingStore) ListPending(ctx context.Context) ([]model.PendingTransaction, error) {
	var list []model.PendingTransaction
	if err := s.db.WithContext(ctx).Where("pending = ?", true).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListByAddress 某账户在某条链上的 pending 交易，按 nonce 升序
func (s *PendingStore) ListByAddress(ctx context.Context, addr common.Address, chainID uint64) ([]model.PendingTransaction, error) {
	var list []model.PendingTransaction
	err := s.db.WithContext(ctx).
		Where("address = ? AND chain_id = ? AND pending = ?", addr.Hex(), chainID, true).
		Order("nonce ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *PendingStore) FindByTracking(ctx context.Context, trackingID string) (*model.PendingTransaction, error) {
	return s.findOne(ctx, "tracking_id = ?", trackingID)
}

func (s *PendingStore) FindByHash(ctx context.Context, hash common.Hash) (*model.PendingTransaction, error) {
	return s.findOne(ctx, "hash = ?", hash.Hex())
}

func (s *PendingStore) findOne(ctx context.Context, query string, arg interface{}) (*model.PendingTransaction, error) {
	var rec model.PendingTransaction
	if err := s.db.WithContext(ctx).Where(query, arg).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return &rec, nil
}
