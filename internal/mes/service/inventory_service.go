package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/eventbus"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"go.uber.org/zap"
)

// InventoryService 原材料库存台账
type InventoryService struct {
	store  repository.Store
	logger *zap.Logger
	events eventbus.Publisher
}

func NewInventoryService(store repository.Store, logger *zap.Logger, events eventbus.Publisher) *InventoryService {
	return &InventoryService{store: store, logger: logger, events: events}
}

type InboundRequest struct {
	Code   string `json:"code" binding:"required"`
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

// Receive 来料入库。首次出现的物料编码以库存0创建后再累加
func (s *InventoryService) Receive(ctx context.Context, req InboundRequest, userID string) (*entity.Material, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, entity.Invalidf("material code is required")
	}
	if req.Amount <= 0 {
		return nil, entity.Invalidf("inbound amount must be positive, got %d", req.Amount)
	}
	if req.Amount > entity.MaxStock {
		return nil, entity.Invalidf("inbound amount %d exceeds limit %d", req.Amount, entity.MaxStock)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = code
	}

	var result *entity.Material
	receive := func(tx repository.Tx) error {
		m, err := tx.Materials().LockByCode(ctx, code)
		if isNotFound(err) {
			m = &entity.Material{Code: code, Name: name, CurrentStock: 0}
			err = tx.Materials().Create(ctx, m)
		}
		if err != nil {
			return fmt.Errorf("load material %s: %w", code, err)
		}
		if !m.CanReceive(req.Amount) {
			return entity.Invalidf("stock of %s would exceed %d (current %d, inbound %d)", code, entity.MaxStock, m.CurrentStock, req.Amount)
		}

		updated, err := tx.Materials().AddStock(ctx, m.ID, req.Amount)
		if errors.Is(err, repository.ErrStockOverflow) {
			return entity.Invalidf("stock of %s would exceed %d", code, entity.MaxStock)
		}
		if err != nil {
			return fmt.Errorf("add stock %s: %w", code, err)
		}

		mv := &entity.StockMovement{
			MaterialID:    updated.ID,
			MaterialCode:  updated.Code,
			MaterialName:  updated.Name,
			MovementType:  entity.MovementReceipt,
			Quantity:      req.Amount,
			StockAfter:    updated.CurrentStock,
			ReferenceType: entity.RefTypeInbound,
			CreatedBy:     userID,
		}
		if err := tx.Movements().Create(ctx, mv); err != nil {
			return fmt.Errorf("record receipt: %w", err)
		}
		result = updated
		return nil
	}
	err := s.store.InTx(ctx, receive)
	if errors.Is(err, repository.ErrConflict) {
		// 并发首次入库同一编码，重试时物料已存在
		err = s.store.InTx(ctx, receive)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("material received",
		zap.String("code", result.Code),
		zap.Int("amount", req.Amount),
		zap.Int("stock", result.CurrentStock))
	publish(ctx, s.events, s.logger, eventbus.EventMaterialReceived, MaterialReceivedPayload{
		MaterialCode: result.Code,
		MaterialName: result.Name,
		Amount:       req.Amount,
		CurrentStock: result.CurrentStock,
	})
	return result, nil
}

// Consume 在调用方事务内扣减物料，库存不足返回 *entity.ShortageError
func (s *InventoryService) Consume(ctx context.Context, tx repository.Tx, material entity.Material, qty int, logID int64, userID string) (*entity.Material, error) {
	if qty <= 0 {
		return nil, entity.Invalidf("consume quantity must be positive, got %d", qty)
	}
	updated, err := tx.Materials().DeductStock(ctx, material.ID, qty)
	if errors.Is(err, repository.ErrInsufficientStock) {
		available := material.CurrentStock
		if current, ferr := tx.Materials().FindByCode(ctx, material.Code); ferr == nil {
			available = current.CurrentStock
		}
		return nil, &entity.ShortageError{
			MaterialCode: material.Code,
			MaterialName: material.Name,
			Required:     qty,
			Available:    available,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("deduct %s: %w", material.Code, err)
	}

	mv := &entity.StockMovement{
		MaterialID:    updated.ID,
		MaterialCode:  updated.Code,
		MaterialName:  updated.Name,
		MovementType:  entity.MovementBackflush,
		Quantity:      -qty,
		StockAfter:    updated.CurrentStock,
		ReferenceType: entity.RefTypeProductionLog,
		ReferenceID:   logID,
		CreatedBy:     userID,
	}
	if err := tx.Movements().Create(ctx, mv); err != nil {
		return nil, fmt.Errorf("record backflush: %w", err)
	}
	return updated, nil
}

// AvailabilityResult 产品齐套检查结果
type AvailabilityResult struct {
	ProductCode string                        `json:"product_code"`
	Feasible    bool                          `json:"feasible"`
	Items       []entity.MaterialAvailability `json:"items"`
}

// Availability 按BOM检查每种物料能否满足一件产品，只读
func (s *InventoryService) Availability(ctx context.Context, productCode string) (*AvailabilityResult, error) {
	productCode = strings.TrimSpace(productCode)
	if productCode == "" {
		return nil, entity.Invalidf("product code is required")
	}
	var result *AvailabilityResult
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		r, err := s.availabilityIn(ctx, tx, productCode)
		result = r
		return err
	})
	return result, err
}

func (s *InventoryService) availabilityIn(ctx context.Context, tx repository.Tx, productCode string) (*AvailabilityResult, error) {
	lines, err := tx.BOMs().ListByProduct(ctx, productCode)
	if err != nil {
		return nil, fmt.Errorf("load bom %s: %w", productCode, err)
	}
	items := entity.CheckAvailability(lines)
	return &AvailabilityResult{
		ProductCode: productCode,
		Feasible:    entity.AllSufficient(items),
		Items:       items,
	}, nil
}

// ListMaterials 全部物料库存，按编码排序
func (s *InventoryService) ListMaterials(ctx context.Context) ([]entity.Material, error) {
	var items []entity.Material
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		items, err = tx.Materials().List(ctx)
		return err
	})
	return items, err
}

// ListMovements 物料流水，最新在前
func (s *InventoryService) ListMovements(ctx context.Context, code string, limit int) ([]entity.StockMovement, error) {
	var items []entity.StockMovement
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		m, err := tx.Materials().FindByCode(ctx, code)
		if err != nil {
			return err
		}
		items, err = tx.Movements().ListByMaterial(ctx, m.ID, limit)
		return err
	})
	return items, err
}
