package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/eventbus"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"go.uber.org/zap"
)

const maxRecentLogLimit = 500

// ProductionService 单件报工：记录、倒冲扣料、推进工单，整体提交或整体回滚
type ProductionService struct {
	store       repository.Store
	inventory   *InventoryService
	operators   *OperatorService
	logger      *zap.Logger
	events      eventbus.Publisher
	recentLimit int
}

func NewProductionService(store repository.Store, inventory *InventoryService, operators *OperatorService, logger *zap.Logger, events eventbus.Publisher, recentLimit int) *ProductionService {
	return &ProductionService{
		store:       store,
		inventory:   inventory,
		operators:   operators,
		logger:      logger,
		events:      events,
		recentLimit: recentLimit,
	}
}

type ReportRequest struct {
	OrderID    int64  `json:"order_id" binding:"required"`
	MachineID  string `json:"machine_id" binding:"required"`
	Result     string `json:"result" binding:"required"`
	DefectCode string `json:"defect_code"`
	SerialNo   string `json:"serial_no"`
}

// ReportResult Applied 为 false 表示工单已完工，本次报工被忽略
type ReportResult struct {
	Applied bool                  `json:"applied"`
	Log     *entity.ProductionLog `json:"log,omitempty"`
	Order   *entity.WorkOrder     `json:"order"`
}

// Report 处理一件产品的报工
func (s *ProductionService) Report(ctx context.Context, req ReportRequest, userID string) (*ReportResult, error) {
	machineID := strings.TrimSpace(req.MachineID)
	if machineID == "" {
		return nil, entity.Invalidf("machine id is required")
	}
	result, defectCode, err := entity.NormalizeResult(req.Result, req.DefectCode)
	if err != nil {
		return nil, err
	}
	operator := s.operators.Resolve(ctx, userID)

	var (
		out      = &ReportResult{}
		shortage *entity.ShortageError
	)
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		order, err := tx.WorkOrders().LockByID(ctx, req.OrderID)
		if isNotFound(err) {
			return entity.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("load work order %d: %w", req.OrderID, err)
		}
		out.Order = order
		if order.IsCompleted() {
			return nil
		}
		if order.Status == entity.WOStatusInProgress && order.MachineID() != machineID {
			return entity.Invalidf("work order %d is running on machine %s, not %s", order.ID, order.MachineID(), machineID)
		}

		now := time.Now()
		next, err := order.AdvanceProgress(now)
		if err != nil {
			return err
		}

		serial := strings.TrimSpace(req.SerialNo)
		if serial == "" {
			serial = GenerateSerial(order.ProductCode)
		}
		log := &entity.ProductionLog{
			WorkOrderID: order.ID,
			ProductCode: order.ProductCode,
			MachineID:   machineID,
			SerialNo:    serial,
			Result:      result,
			DefectCode:  defectCode,
			ProducedAt:  now,
		}
		if operator != nil {
			log.OperatorID = &operator.ID
		}
		if err := tx.ProductionLogs().Create(ctx, log); err != nil {
			return fmt.Errorf("append production log: %w", err)
		}
		log.Operator = operator

		if result == entity.ResultOK {
			if err := s.backflush(ctx, tx, log, userID); err != nil {
				errors.As(err, &shortage)
				return err
			}
		}

		if err := tx.WorkOrders().Update(ctx, &next, entity.WOStatusInProgress); err != nil {
			return fmt.Errorf("advance work order %d: %w", order.ID, err)
		}
		out.Applied = true
		out.Log = log
		out.Order = &next
		return nil
	})
	if shortage != nil {
		s.logger.Warn("material shortage, report rolled back",
			zap.Int64("order_id", req.OrderID),
			zap.String("machine", machineID),
			zap.String("material", shortage.MaterialCode),
			zap.Int("required", shortage.Required),
			zap.Int("available", shortage.Available))
		publish(ctx, s.events, s.logger, eventbus.EventMaterialShortage, ShortagePayload{
			OrderID:      req.OrderID,
			MachineID:    machineID,
			MaterialCode: shortage.MaterialCode,
			MaterialName: shortage.MaterialName,
			Required:     shortage.Required,
			Available:    shortage.Available,
		})
	}
	if err != nil {
		return nil, err
	}

	if !out.Applied {
		s.logger.Info("report ignored, work order already completed",
			zap.Int64("order_id", out.Order.ID), zap.String("machine", machineID))
		return out, nil
	}

	s.logger.Info("production reported",
		zap.Int64("order_id", out.Order.ID),
		zap.String("machine", machineID),
		zap.String("serial", out.Log.SerialNo),
		zap.String("result", result),
		zap.Int("current", out.Order.CurrentQty),
		zap.Int("target", out.Order.TargetQty))
	publish(ctx, s.events, s.logger, eventbus.EventProductionReported, ProductionReportedPayload{
		LogID:        out.Log.ID,
		OrderID:      out.Order.ID,
		ProductCode:  out.Order.ProductCode,
		MachineID:    machineID,
		SerialNo:     out.Log.SerialNo,
		Result:       result,
		DefectCode:   defectCode,
		OperatorName: out.Log.OperatorName(),
		CurrentQty:   out.Order.CurrentQty,
		TargetQty:    out.Order.TargetQty,
		Status:       out.Order.Status,
	})
	if out.Order.IsCompleted() {
		s.logger.Info("work order completed", zap.Int64("order_id", out.Order.ID))
		publish(ctx, s.events, s.logger, eventbus.EventOrderCompleted, orderPayload(out.Order))
	}
	return out, nil
}

// backflush 按BOM逐行扣减一件产品的用料
func (s *ProductionService) backflush(ctx context.Context, tx repository.Tx, log *entity.ProductionLog, userID string) error {
	lines, err := tx.BOMs().ListByProduct(ctx, log.ProductCode)
	if err != nil {
		return fmt.Errorf("load bom %s: %w", log.ProductCode, err)
	}
	for _, line := range lines {
		if line.Material == nil {
			return fmt.Errorf("bom line %d has no material", line.ID)
		}
		updated, err := s.inventory.Consume(ctx, tx, *line.Material, line.RequiredQty, log.ID, userID)
		if err != nil {
			return err
		}
		s.logger.Debug("backflush",
			zap.Int64("log_id", log.ID),
			zap.String("material", updated.Code),
			zap.Int("qty", line.RequiredQty),
			zap.Int("stock", updated.CurrentStock))
	}
	return nil
}

// RecentLogDTO 最近报工记录
type RecentLogDTO struct {
	ID           int64     `json:"id"`
	WorkOrderID  int64     `json:"work_order_id"`
	ProductCode  string    `json:"product_code"`
	MachineID    string    `json:"machine_id"`
	SerialNo     string    `json:"serial_no"`
	Result       string    `json:"result"`
	DefectCode   *string   `json:"defect_code"`
	OperatorName string    `json:"operator_name"`
	ProducedAt   time.Time `json:"produced_at"`
}

func toRecentLogDTO(l entity.ProductionLog) RecentLogDTO {
	return RecentLogDTO{
		ID:           l.ID,
		WorkOrderID:  l.WorkOrderID,
		ProductCode:  l.ProductCode,
		MachineID:    l.MachineID,
		SerialNo:     l.SerialNo,
		Result:       l.Result,
		DefectCode:   l.DefectCode,
		OperatorName: l.OperatorName(),
		ProducedAt:   l.ProducedAt,
	}
}

// RecentLogs 最近的报工记录，最新在前。limit<=0 使用配置默认值
func (s *ProductionService) RecentLogs(ctx context.Context, limit int) ([]RecentLogDTO, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}
	if limit > maxRecentLogLimit {
		limit = maxRecentLogLimit
	}
	var logs []entity.ProductionLog
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		logs, err = tx.ProductionLogs().ListRecent(ctx, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]RecentLogDTO, 0, len(logs))
	for _, l := range logs {
		items = append(items, toRecentLogDTO(l))
	}
	return items, nil
}

// OrderLogs 工单的全部报工记录，按时间顺序
func (s *ProductionService) OrderLogs(ctx context.Context, orderID int64) ([]RecentLogDTO, error) {
	var logs []entity.ProductionLog
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.WorkOrders().GetByID(ctx, orderID); err != nil {
			if isNotFound(err) {
				return entity.ErrOrderNotFound
			}
			return err
		}
		var err error
		logs, err = tx.ProductionLogs().ListByWorkOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]RecentLogDTO, 0, len(logs))
	for _, l := range logs {
		items = append(items, toRecentLogDTO(l))
	}
	return items, nil
}
