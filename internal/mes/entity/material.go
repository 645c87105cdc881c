package entity

import (
	"math"
	"time"
)

// Material 原材料
type Material struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Code         string    `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name         string    `json:"name" gorm:"size:128;not null"`
	CurrentStock int       `json:"current_stock" gorm:"not null;default:0;check:current_stock >= 0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Material) TableName() string {
	return "mes_materials"
}

// MaxStock 单种物料库存上限，两种存储驱动一致
const MaxStock = math.MaxInt32

// CanReceive 入库 amount 后库存是否仍不超过 MaxStock
func (m Material) CanReceive(amount int) bool {
	return amount > 0 && amount <= MaxStock && m.CurrentStock <= MaxStock-amount
}

// CanSupply 当前库存是否足够扣减 qty
func (m Material) CanSupply(qty int) bool {
	return m.CurrentStock >= qty
}

// MovementType 库存流水类型
const (
	MovementReceipt   = "RECEIPT"   // 来料入库
	MovementBackflush = "BACKFLUSH" // 报工倒冲扣料
)

// 流水来源
const (
	RefTypeInbound       = "INBOUND"
	RefTypeProductionLog = "PRODUCTION_LOG"
)

// StockMovement 库存流水，只追加不修改
type StockMovement struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MaterialID    int64     `json:"material_id" gorm:"not null;index"`
	MaterialCode  string    `json:"material_code" gorm:"size:64"`
	MaterialName  string    `json:"material_name" gorm:"size:128"`
	MovementType  string    `json:"movement_type" gorm:"size:20;not null"`
	Quantity      int       `json:"quantity" gorm:"not null"` // 正=入，负=出
	StockAfter    int       `json:"stock_after" gorm:"not null"`
	ReferenceType string    `json:"reference_type" gorm:"size:30;not null"`
	ReferenceID   int64     `json:"reference_id"`
	CreatedBy     string    `json:"created_by" gorm:"size:64"`
	CreatedAt     time.Time `json:"created_at"`
}

func (StockMovement) TableName() string {
	return "mes_stock_movements"
}
