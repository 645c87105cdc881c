package handler

import (
	"net/http"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type WorkOrderHandler struct {
	orders     *service.WorkOrderService
	assignment *service.AssignmentService
	production *service.ProductionService
}

func NewWorkOrderHandler(orders *service.WorkOrderService, assignment *service.AssignmentService, production *service.ProductionService) *WorkOrderHandler {
	return &WorkOrderHandler{orders: orders, assignment: assignment, production: production}
}

// Create 创建工单
// POST /api/v1/mes/work-orders
func (h *WorkOrderHandler) Create(c *gin.Context) {
	var req service.CreateWorkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	wo, err := h.orders.Create(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, wo)
}

// List 工单列表，最新在前
// GET /api/v1/mes/work-orders?status=WAITING&page=1&page_size=20
func (h *WorkOrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", entity.WOStatusWaiting, entity.WOStatusInProgress, entity.WOStatusCompleted:
	default:
		BadRequest(c, "无效的工单状态: "+status)
		return
	}
	items, total, err := h.orders.List(c.Request.Context(), repository.WOListParams{
		Status: status,
		Page:   page,
		Size:   pageSize,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: newPagination(page, pageSize, total)})
}

func (h *WorkOrderHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	wo, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, wo)
}

// Logs 工单的报工记录
func (h *WorkOrderHandler) Logs(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	items, err := h.production.OrderLogs(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items})
}

// Assign 设备请求派工，没有可派工单时返回 204
// POST /api/v1/mes/machines/:machine_id/assign
func (h *WorkOrderHandler) Assign(c *gin.Context) {
	wo, err := h.assignment.Assign(c.Request.Context(), c.Param("machine_id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	if wo == nil {
		c.Status(http.StatusNoContent)
		return
	}
	Success(c, wo)
}
