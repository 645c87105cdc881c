package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrStockOverflow     = errors.New("stock exceeds upper bound")
)

// Store 事务入口。fn 返回错误时本次事务内的所有写入全部丢弃
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx 事务内可见的仓库集合
type Tx interface {
	Materials() MaterialRepository
	Movements() MovementRepository
	BOMs() BOMRepository
	Operators() OperatorRepository
	WorkOrders() WorkOrderRepository
	ProductionLogs() ProductionLogRepository
}

type MaterialRepository interface {
	FindByCode(ctx context.Context, code string) (*entity.Material, error)
	// LockByCode 读取并锁定物料行直到事务结束
	LockByCode(ctx context.Context, code string) (*entity.Material, error)
	Create(ctx context.Context, m *entity.Material) error
	// AddStock 累加后超过 entity.MaxStock 时返回 ErrStockOverflow
	AddStock(ctx context.Context, id int64, amount int) (*entity.Material, error)
	// DeductStock 仅在库存 >= qty 时扣减，否则返回 ErrInsufficientStock
	DeductStock(ctx context.Context, id int64, qty int) (*entity.Material, error)
	List(ctx context.Context) ([]entity.Material, error)
}

type MovementRepository interface {
	Create(ctx context.Context, mv *entity.StockMovement) error
	ListByMaterial(ctx context.Context, materialID int64, limit int) ([]entity.StockMovement, error)
}

type BOMRepository interface {
	// ListByProduct 按行ID升序返回，Material 已加载
	ListByProduct(ctx context.Context, productCode string) ([]entity.BOMLine, error)
	Upsert(ctx context.Context, line *entity.BOMLine) error
}

type OperatorRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Operator, error)
	Save(ctx context.Context, op *entity.Operator) error
}

type WorkOrderRepository interface {
	Create(ctx context.Context, wo *entity.WorkOrder) error
	GetByID(ctx context.Context, id int64) (*entity.WorkOrder, error)
	LockByID(ctx context.Context, id int64) (*entity.WorkOrder, error)
	FindInProgressByMachine(ctx context.Context, machineID string) (*entity.WorkOrder, error)
	// LockOldestWaiting 锁定ID最小的 WAITING 工单
	LockOldestWaiting(ctx context.Context) (*entity.WorkOrder, error)
	// Update 仅当库中状态仍为 fromStatus 时写入，否则返回 ErrConflict
	Update(ctx context.Context, wo *entity.WorkOrder, fromStatus string) error
	List(ctx context.Context, params WOListParams) ([]entity.WorkOrder, int64, error)
}

type ProductionLogRepository interface {
	Create(ctx context.Context, log *entity.ProductionLog) error
	// ListRecent 按ID倒序，Operator 已加载
	ListRecent(ctx context.Context, limit int) ([]entity.ProductionLog, error)
	ListByWorkOrder(ctx context.Context, workOrderID int64) ([]entity.ProductionLog, error)
}

type WOListParams struct {
	Status string
	Page   int
	Size   int
}

// Normalize 填充默认分页
func (p WOListParams) Normalize() WOListParams {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Size <= 0 {
		p.Size = 20
	}
	return p
}
