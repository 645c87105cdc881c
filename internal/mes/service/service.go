package service

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/mes/eventbus"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"go.uber.org/zap"
)

// DefaultRecentLogLimit 最近报工记录默认条数
const DefaultRecentLogLimit = 15

// Options 服务依赖，nil 字段使用默认实现
type Options struct {
	Logger         *zap.Logger
	Publisher      eventbus.Publisher
	Locker         MachineLocker
	Archive        ObjectStore
	RecentLogLimit int
}

// Services MES 服务集合
type Services struct {
	Inventory  *InventoryService
	BOM        *BOMService
	WorkOrder  *WorkOrderService
	Assignment *AssignmentService
	Production *ProductionService
	Operator   *OperatorService
	Export     *ExportService
}

func NewServices(store repository.Store, opts Options) *Services {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = eventbus.NewMulti(opts.Logger)
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalMachineLocker()
	}
	if opts.RecentLogLimit <= 0 {
		opts.RecentLogLimit = DefaultRecentLogLimit
	}

	inventory := NewInventoryService(store, opts.Logger, opts.Publisher)
	operators := NewOperatorService(store, opts.Logger)
	production := NewProductionService(store, inventory, operators, opts.Logger, opts.Publisher, opts.RecentLogLimit)
	return &Services{
		Inventory:  inventory,
		BOM:        NewBOMService(store, opts.Logger),
		WorkOrder:  NewWorkOrderService(store, opts.Logger, opts.Publisher),
		Assignment: NewAssignmentService(store, inventory, opts.Locker, opts.Logger, opts.Publisher),
		Production: production,
		Operator:   operators,
		Export:     NewExportService(production, opts.Archive, opts.Logger),
	}
}

// publish 事务提交后发布事件，失败只记录
func publish(ctx context.Context, p eventbus.Publisher, logger *zap.Logger, eventType string, payload interface{}) {
	ev := eventbus.NewEvent(eventType, payload)
	if err := p.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("publish event failed", zap.String("event", eventType), zap.Error(err))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
