package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// GormStore 基于 gorm 的事务存储
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

// DB 返回底层db
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Materials() MaterialRepository           { return &materialRepo{db: t.db} }
func (t *gormTx) Movements() MovementRepository           { return &movementRepo{db: t.db} }
func (t *gormTx) BOMs() BOMRepository                     { return &bomRepo{db: t.db} }
func (t *gormTx) Operators() OperatorRepository           { return &operatorRepo{db: t.db} }
func (t *gormTx) WorkOrders() WorkOrderRepository         { return &workOrderRepo{db: t.db} }
func (t *gormTx) ProductionLogs() ProductionLogRepository { return &productionLogRepo{db: t.db} }

var _ Store = (*GormStore)(nil)

// translate 将 gorm 错误映射为仓库错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	}
	return err
}
