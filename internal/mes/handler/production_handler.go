package handler

import (
	"fmt"
	"net/http"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProductionHandler struct {
	production *service.ProductionService
	export     *service.ExportService
	logger     *zap.Logger
}

func NewProductionHandler(production *service.ProductionService, export *service.ExportService, logger *zap.Logger) *ProductionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductionHandler{production: production, export: export, logger: logger}
}

// Report 单件报工
// POST /api/v1/mes/production/reports
func (h *ProductionHandler) Report(c *gin.Context) {
	var req service.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.production.Report(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}

// RecentLogs 最近报工记录
// GET /api/v1/mes/production/logs/recent?limit=15
func (h *ProductionHandler) RecentLogs(c *gin.Context) {
	items, err := h.production.RecentLogs(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items})
}

// Export 下载报工记录 xlsx
func (h *ProductionHandler) Export(c *gin.Context) {
	data, filename, err := h.export.ExportLogs(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, service.XLSXContentType, data)
}

// Archive 导出并归档到对象存储
func (h *ProductionHandler) Archive(c *gin.Context) {
	object, err := h.export.Archive(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		h.logger.Warn("archive production logs failed", zap.Error(err))
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"object": object})
}
