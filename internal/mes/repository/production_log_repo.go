package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

type productionLogRepo struct {
	db *gorm.DB
}

var _ ProductionLogRepository = (*productionLogRepo)(nil)

func (r *productionLogRepo) Create(ctx context.Context, log *entity.ProductionLog) error {
	return translate(r.db.WithContext(ctx).Omit("Operator").Create(log).Error)
}

func (r *productionLogRepo) ListRecent(ctx context.Context, limit int) ([]entity.ProductionLog, error) {
	var logs []entity.ProductionLog
	err := r.db.WithContext(ctx).Preload("Operator").
		Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, translate(err)
}

func (r *productionLogRepo) ListByWorkOrder(ctx context.Context, workOrderID int64) ([]entity.ProductionLog, error) {
	var logs []entity.ProductionLog
	err := r.db.WithContext(ctx).Preload("Operator").
		Where("work_order_id = ?", workOrderID).
		Order("id ASC").Find(&logs).Error
	return logs, translate(err)
}
