package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type MaterialHandler struct {
	svc *service.InventoryService
}

func NewMaterialHandler(svc *service.InventoryService) *MaterialHandler {
	return &MaterialHandler{svc: svc}
}

// Inbound 来料入库
// POST /api/v1/mes/materials/inbound
func (h *MaterialHandler) Inbound(c *gin.Context) {
	var req service.InboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	material, err := h.svc.Receive(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, material)
}

func (h *MaterialHandler) List(c *gin.Context) {
	items, err := h.svc.ListMaterials(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items})
}

// Movements 物料出入库流水
// GET /api/v1/mes/materials/:code/movements?limit=50
func (h *MaterialHandler) Movements(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	items, err := h.svc.ListMovements(c.Request.Context(), c.Param("code"), limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items})
}

// Availability 产品齐套检查
func (h *MaterialHandler) Availability(c *gin.Context) {
	result, err := h.svc.Availability(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, result)
}
