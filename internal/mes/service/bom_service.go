package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// BOMService 产品物料清单维护
type BOMService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewBOMService(store repository.Store, logger *zap.Logger) *BOMService {
	return &BOMService{store: store, logger: logger}
}

type UpsertBOMLineRequest struct {
	ProductCode  string `json:"product_code" binding:"required"`
	MaterialCode string `json:"material_code" binding:"required"`
	RequiredQty  int    `json:"required_qty"`
}

// ImportResult 批量导入结果
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Lines 产品的BOM行，按录入顺序
func (s *BOMService) Lines(ctx context.Context, productCode string) ([]entity.BOMLine, error) {
	var lines []entity.BOMLine
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		lines, err = tx.BOMs().ListByProduct(ctx, strings.TrimSpace(productCode))
		return err
	})
	return lines, err
}

// Upsert 新增或修改一行BOM，物料必须已入库建档
func (s *BOMService) Upsert(ctx context.Context, req UpsertBOMLineRequest) (*entity.BOMLine, error) {
	var line *entity.BOMLine
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		line, err = s.upsertIn(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("bom line saved",
		zap.String("product", line.ProductCode),
		zap.String("material", req.MaterialCode),
		zap.Int("qty", line.RequiredQty))
	return line, nil
}

func (s *BOMService) upsertIn(ctx context.Context, tx repository.Tx, req UpsertBOMLineRequest) (*entity.BOMLine, error) {
	productCode := strings.TrimSpace(req.ProductCode)
	materialCode := strings.TrimSpace(req.MaterialCode)
	if productCode == "" || materialCode == "" {
		return nil, entity.Invalidf("product code and material code are required")
	}
	if req.RequiredQty <= 0 {
		return nil, entity.Invalidf("required quantity must be positive, got %d", req.RequiredQty)
	}
	m, err := tx.Materials().FindByCode(ctx, materialCode)
	if isNotFound(err) {
		return nil, entity.Invalidf("unknown material %s", materialCode)
	}
	if err != nil {
		return nil, err
	}
	line := &entity.BOMLine{
		ProductCode: productCode,
		MaterialID:  m.ID,
		RequiredQty: req.RequiredQty,
	}
	if err := tx.BOMs().Upsert(ctx, line); err != nil {
		return nil, fmt.Errorf("save bom line: %w", err)
	}
	line.Material = m
	return line, nil
}

// ImportXLSX 从Excel首个工作表导入，列：产品编码、物料编码、单件用量
func (s *BOMService) ImportXLSX(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, entity.Invalidf("read excel: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, entity.Invalidf("read excel: %v", err)
	}
	return s.importRows(ctx, rows)
}

// ImportCSV 导入CSV，encoding 为 gbk 时先转码为 UTF-8
func (s *BOMService) ImportCSV(ctx context.Context, r io.Reader, encoding string) (*ImportResult, error) {
	if strings.EqualFold(encoding, "gbk") {
		r = transform.NewReader(r, simplifiedchinese.GBK.NewDecoder())
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, entity.Invalidf("read csv: %v", err)
		}
		rows = append(rows, record)
	}
	return s.importRows(ctx, rows)
}

// importRows 整批在一个事务内写入，任一行非法则全部不生效。
// 第一行数量列不是数字时视为表头
func (s *BOMService) importRows(ctx context.Context, rows [][]string) (*ImportResult, error) {
	result := &ImportResult{}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		result.Imported, result.Skipped = 0, 0
		for i, row := range rows {
			if isBlankRow(row) {
				result.Skipped++
				continue
			}
			if len(row) < 3 {
				return entity.Invalidf("row %d: expected product code, material code, required qty", i+1)
			}
			qty, err := strconv.Atoi(strings.TrimSpace(row[2]))
			if err != nil {
				if i == 0 {
					continue
				}
				return entity.Invalidf("row %d: invalid quantity %q", i+1, row[2])
			}
			_, err = s.upsertIn(ctx, tx, UpsertBOMLineRequest{
				ProductCode:  row[0],
				MaterialCode: row[1],
				RequiredQty:  qty,
			})
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("bom imported", zap.Int("imported", result.Imported), zap.Int("skipped", result.Skipped))
	return result, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
