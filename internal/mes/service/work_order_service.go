package service

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/eventbus"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"go.uber.org/zap"
)

type WorkOrderService struct {
	store  repository.Store
	logger *zap.Logger
	events eventbus.Publisher
}

func NewWorkOrderService(store repository.Store, logger *zap.Logger, events eventbus.Publisher) *WorkOrderService {
	return &WorkOrderService{store: store, logger: logger, events: events}
}

type CreateWorkOrderRequest struct {
	ProductCode string `json:"product_code" binding:"required"`
	TargetQty   int    `json:"target_qty"`
}

// Create 创建待生产工单
func (s *WorkOrderService) Create(ctx context.Context, req CreateWorkOrderRequest, userID string) (*entity.WorkOrder, error) {
	wo, err := entity.NewWorkOrder(req.ProductCode, req.TargetQty, userID)
	if err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		return tx.WorkOrders().Create(ctx, wo)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("work order created",
		zap.Int64("order_id", wo.ID),
		zap.String("product", wo.ProductCode),
		zap.Int("target", wo.TargetQty))
	publish(ctx, s.events, s.logger, eventbus.EventOrderCreated, orderPayload(wo))
	return wo, nil
}

func (s *WorkOrderService) Get(ctx context.Context, id int64) (*entity.WorkOrder, error) {
	var wo *entity.WorkOrder
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		wo, err = tx.WorkOrders().GetByID(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, entity.ErrOrderNotFound
	}
	return wo, err
}

// List 最新创建的在前
func (s *WorkOrderService) List(ctx context.Context, params repository.WOListParams) ([]entity.WorkOrder, int64, error) {
	var (
		items []entity.WorkOrder
		total int64
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		items, total, err = tx.WorkOrders().List(ctx, params)
		return err
	})
	return items, total, err
}
