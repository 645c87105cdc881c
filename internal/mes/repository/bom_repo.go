package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type bomRepo struct {
	db *gorm.DB
}

var _ BOMRepository = (*bomRepo)(nil)

func (r *bomRepo) ListByProduct(ctx context.Context, productCode string) ([]entity.BOMLine, error) {
	var lines []entity.BOMLine
	err := r.db.WithContext(ctx).Preload("Material").
		Where("product_code = ?", productCode).
		Order("id ASC").Find(&lines).Error
	return lines, translate(err)
}

// Upsert 同一产品同一物料只保留一行，重复写入更新用量
func (r *bomRepo) Upsert(ctx context.Context, line *entity.BOMLine) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_code"}, {Name: "material_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"required_qty", "updated_at"}),
	}).Omit("Material").Create(line).Error)
}

type operatorRepo struct {
	db *gorm.DB
}

var _ OperatorRepository = (*operatorRepo)(nil)

func (r *operatorRepo) GetByID(ctx context.Context, id string) (*entity.Operator, error) {
	var op entity.Operator
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&op).Error; err != nil {
		return nil, translate(err)
	}
	return &op, nil
}

func (r *operatorRepo) Save(ctx context.Context, op *entity.Operator) error {
	return translate(r.db.WithContext(ctx).Save(op).Error)
}
