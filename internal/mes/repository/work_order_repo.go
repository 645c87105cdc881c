package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type workOrderRepo struct {
	db *gorm.DB
}

var _ WorkOrderRepository = (*workOrderRepo)(nil)

func (r *workOrderRepo) Create(ctx context.Context, wo *entity.WorkOrder) error {
	return translate(r.db.WithContext(ctx).Create(wo).Error)
}

func (r *workOrderRepo) GetByID(ctx context.Context, id int64) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wo).Error; err != nil {
		return nil, translate(err)
	}
	return &wo, nil
}

func (r *workOrderRepo) LockByID(ctx context.Context, id int64) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&wo).Error
	if err != nil {
		return nil, translate(err)
	}
	return &wo, nil
}

func (r *workOrderRepo) FindInProgressByMachine(ctx context.Context, machineID string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.WithContext(ctx).
		Where("assigned_machine_id = ? AND status = ?", machineID, entity.WOStatusInProgress).
		Order("id ASC").First(&wo).Error
	if err != nil {
		return nil, translate(err)
	}
	return &wo, nil
}

func (r *workOrderRepo) LockOldestWaiting(ctx context.Context) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ?", entity.WOStatusWaiting).
		Order("id ASC").First(&wo).Error
	if err != nil {
		return nil, translate(err)
	}
	return &wo, nil
}

func (r *workOrderRepo) Update(ctx context.Context, wo *entity.WorkOrder, fromStatus string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entity.WorkOrder{}).
		Where("id = ? AND status = ?", wo.ID, fromStatus).
		Updates(map[string]interface{}{
			"current_qty":         wo.CurrentQty,
			"status":              wo.Status,
			"assigned_machine_id": wo.AssignedMachineID,
			"assigned_at":         wo.AssignedAt,
			"completed_at":        wo.CompletedAt,
			"updated_at":          now,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	wo.UpdatedAt = now
	return nil
}

func (r *workOrderRepo) List(ctx context.Context, params WOListParams) ([]entity.WorkOrder, int64, error) {
	params = params.Normalize()
	query := r.db.WithContext(ctx).Model(&entity.WorkOrder{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var wos []entity.WorkOrder
	err := query.Order("id DESC").Offset((params.Page - 1) * params.Size).Limit(params.Size).Find(&wos).Error
	return wos, total, translate(err)
}
