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

// AssignmentService 空闲设备领取最早的待生产工单
type AssignmentService struct {
	store     repository.Store
	inventory *InventoryService
	locker    MachineLocker
	logger    *zap.Logger
	events    eventbus.Publisher
}

func NewAssignmentService(store repository.Store, inventory *InventoryService, locker MachineLocker, logger *zap.Logger, events eventbus.Publisher) *AssignmentService {
	return &AssignmentService{store: store, inventory: inventory, locker: locker, logger: logger, events: events}
}

// Assign 返回设备当前执行的工单；设备空闲时绑定最早的 WAITING 工单。
// 没有可派工单时返回 (nil, nil)。只考察最早的一张，缺料时不顺延
func (s *AssignmentService) Assign(ctx context.Context, machineID string) (*entity.WorkOrder, error) {
	machineID = strings.TrimSpace(machineID)
	if machineID == "" {
		return nil, entity.Invalidf("machine id is required")
	}

	unlock, err := s.locker.Lock(ctx, machineID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		assigned *entity.WorkOrder
		newly    bool
	)
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		current, err := tx.WorkOrders().FindInProgressByMachine(ctx, machineID)
		if err == nil {
			assigned = current
			return nil
		}
		if !isNotFound(err) {
			return fmt.Errorf("find running order: %w", err)
		}

		candidate, err := tx.WorkOrders().LockOldestWaiting(ctx)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find waiting order: %w", err)
		}

		av, err := s.inventory.availabilityIn(ctx, tx, candidate.ProductCode)
		if err != nil {
			return err
		}
		if !av.Feasible {
			s.logger.Info("oldest waiting order not feasible, machine stays idle",
				zap.String("machine", machineID),
				zap.Int64("order_id", candidate.ID),
				zap.String("product", candidate.ProductCode))
			return nil
		}

		bound, err := candidate.BindMachine(machineID, time.Now())
		if err != nil {
			return err
		}
		if err := tx.WorkOrders().Update(ctx, &bound, entity.WOStatusWaiting); err != nil {
			return err
		}
		assigned = &bound
		newly = true
		return nil
	})
	if errors.Is(err, repository.ErrConflict) {
		// 工单已被其他设备领取，本次不派工
		s.logger.Info("assignment lost race", zap.String("machine", machineID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if newly {
		s.logger.Info("work order assigned",
			zap.String("machine", machineID),
			zap.Int64("order_id", assigned.ID),
			zap.String("product", assigned.ProductCode))
		publish(ctx, s.events, s.logger, eventbus.EventOrderAssigned, orderPayload(assigned))
	}
	return assigned, nil
}
