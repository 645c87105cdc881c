package handler

import (
	"path/filepath"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type BOMHandler struct {
	svc *service.BOMService
}

func NewBOMHandler(svc *service.BOMService) *BOMHandler {
	return &BOMHandler{svc: svc}
}

// Lines 产品BOM
// GET /api/v1/mes/products/:code/bom
func (h *BOMHandler) Lines(c *gin.Context) {
	lines, err := h.svc.Lines(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: lines})
}

// Upsert 新增或修改一行BOM
func (h *BOMHandler) Upsert(c *gin.Context) {
	var req service.UpsertBOMLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	line, err := h.svc.Upsert(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, line)
}

// Import 批量导入BOM，支持 xlsx 和 csv
// POST /api/v1/mes/boms/import  multipart: file, encoding=utf-8|gbk
func (h *BOMHandler) Import(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传文件")
		return
	}
	file, err := fh.Open()
	if err != nil {
		BadRequest(c, "无法读取文件")
		return
	}
	defer file.Close()

	var result *service.ImportResult
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".xlsx":
		result, err = h.svc.ImportXLSX(c.Request.Context(), file)
	case ".csv":
		result, err = h.svc.ImportCSV(c.Request.Context(), file, c.PostForm("encoding"))
	default:
		BadRequest(c, "仅支持 .xlsx 或 .csv 文件")
		return
	}
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}
