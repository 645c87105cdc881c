package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrArchiveDisabled 未配置对象存储
var ErrArchiveDisabled = errors.New("archive storage not configured")

// ObjectStore 归档对象存储
type ObjectStore interface {
	Put(ctx context.Context, objectName, contentType string, r io.Reader, size int64) error
}

// MinioObjectStore 基于 MinIO 的归档存储
type MinioObjectStore struct {
	client *minio.Client
	bucket string
}

func NewMinioObjectStore(client *minio.Client, bucket string) *MinioObjectStore {
	return &MinioObjectStore{client: client, bucket: bucket}
}

// EnsureBucket 桶不存在时创建
func (m *MinioObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *MinioObjectStore) Put(ctx context.Context, objectName, contentType string, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectName, err)
	}
	return nil
}

// ExportService 报工记录导出与归档
type ExportService struct {
	production *ProductionService
	archive    ObjectStore
	logger     *zap.Logger
}

func NewExportService(production *ProductionService, archive ObjectStore, logger *zap.Logger) *ExportService {
	return &ExportService{production: production, archive: archive, logger: logger}
}

var logExportHeaders = []string{"ID", "工单", "产品编码", "设备", "序列号", "结果", "不良代码", "作业员", "生产时间"}

// ExportLogs 导出最近报工记录为 xlsx，返回文件内容和文件名
func (s *ExportService) ExportLogs(ctx context.Context, limit int) ([]byte, string, error) {
	logs, err := s.production.RecentLogs(ctx, limit)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "ProductionLogs"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range logExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	var ng int
	for idx, l := range logs {
		row := idx + 2
		defect := ""
		if l.DefectCode != nil {
			defect = *l.DefectCode
			ng++
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), l.ID)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), l.WorkOrderID)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), l.ProductCode)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), l.MachineID)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), l.SerialNo)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), l.Result)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), defect)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), l.OperatorName)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), l.ProducedAt.Format("2006-01-02 15:04:05"))
	}

	summaryRow := len(logs) + 2
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("C%d", summaryRow), fmt.Sprintf("共 %d 件，不良 %d 件", len(logs), ng))

	colWidths := []float64{8, 8, 14, 10, 22, 6, 12, 12, 20}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("write xlsx: %w", err)
	}
	filename := fmt.Sprintf("production_logs_%s.xlsx", time.Now().Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}

// Archive 导出并上传到对象存储，返回对象路径
func (s *ExportService) Archive(ctx context.Context, limit int) (string, error) {
	if s.archive == nil {
		return "", ErrArchiveDisabled
	}
	data, filename, err := s.ExportLogs(ctx, limit)
	if err != nil {
		return "", err
	}
	objectName := fmt.Sprintf("production-logs/%s/%s_%s", time.Now().Format("2006/01/02"), uuid.New().String()[:8], filename)
	if err := s.archive.Put(ctx, objectName, XLSXContentType, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	s.logger.Info("production logs archived", zap.String("object", objectName), zap.Int("bytes", len(data)))
	return objectName, nil
}
