package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/sse"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 处理器集合
type Handlers struct {
	Material   *MaterialHandler
	BOM        *BOMHandler
	Operator   *OperatorHandler
	WorkOrder  *WorkOrderHandler
	Production *ProductionHandler
	SSE        *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub, logger *zap.Logger) *Handlers {
	return &Handlers{
		Material:   NewMaterialHandler(svc.Inventory),
		BOM:        NewBOMHandler(svc.BOM),
		Operator:   NewOperatorHandler(svc.Operator),
		WorkOrder:  NewWorkOrderHandler(svc.WorkOrder, svc.Assignment, svc.Production),
		Production: NewProductionHandler(svc.Production, svc.Export, logger),
		SSE:        NewSSEHandler(hub),
	}
}

// RegisterRoutes 注册 MES 路由，group 需已挂载 JWT 认证
func RegisterRoutes(group *gin.RouterGroup, h *Handlers) {
	supervisor := middleware.RequireRole(middleware.RoleSupervisor)

	materials := group.Group("/materials")
	{
		materials.GET("", h.Material.List)
		materials.POST("/inbound", supervisor, h.Material.Inbound)
		materials.GET("/:code/movements", h.Material.Movements)
	}

	products := group.Group("/products")
	{
		products.GET("/:code/availability", h.Material.Availability)
		products.GET("/:code/bom", h.BOM.Lines)
	}

	boms := group.Group("/boms", supervisor)
	{
		boms.POST("", h.BOM.Upsert)
		boms.POST("/import", h.BOM.Import)
	}

	group.POST("/operators", supervisor, h.Operator.Register)

	orders := group.Group("/work-orders")
	{
		orders.GET("", h.WorkOrder.List)
		orders.POST("", supervisor, h.WorkOrder.Create)
		orders.GET("/:id", h.WorkOrder.Get)
		orders.GET("/:id/logs", h.WorkOrder.Logs)
	}

	group.POST("/machines/:machine_id/assign", h.WorkOrder.Assign)

	production := group.Group("/production")
	{
		production.POST("/reports", h.Production.Report)
		production.GET("/logs/recent", h.Production.RecentLogs)
		production.GET("/logs/export", supervisor, h.Production.Export)
		production.POST("/logs/archive", supervisor, h.Production.Archive)
	}

	group.GET("/events", h.SSE.Stream)
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newPagination(page, pageSize int, total int64) *Pagination {
	pages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		pages++
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: int(total), TotalPages: pages}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// 业务错误码
const (
	CodeInvalidInput     = 40000
	CodeOrderNotFound    = 40401
	CodeNotFound         = 40400
	CodeMaterialShortage = 40901
	CodeMachineBusy      = 40902
	CodeConflict         = 40900
	CodeArchiveDisabled  = 50301
)

// HandleError 将服务层错误映射为响应
func HandleError(c *gin.Context, err error) {
	var shortage *entity.ShortageError
	switch {
	case errors.As(err, &shortage):
		// 消息即缺料标识，客户端按前缀识别
		Error(c, CodeMaterialShortage, shortage.Error())
	case errors.Is(err, entity.ErrInvalidInput):
		Error(c, CodeInvalidInput, err.Error())
	case errors.Is(err, entity.ErrOrderNotFound):
		Error(c, CodeOrderNotFound, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		Error(c, CodeNotFound, err.Error())
	case errors.Is(err, service.ErrMachineBusy):
		Error(c, CodeMachineBusy, err.Error())
	case errors.Is(err, repository.ErrConflict):
		Error(c, CodeConflict, err.Error())
	case errors.Is(err, service.ErrArchiveDisabled):
		Error(c, CodeArchiveDisabled, err.Error())
	default:
		c.Error(err)
		InternalError(c, "internal error")
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// queryInt 读取整数查询参数，缺省或非法时返回 def
func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}
