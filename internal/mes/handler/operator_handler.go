package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type OperatorHandler struct {
	svc *service.OperatorService
}

func NewOperatorHandler(svc *service.OperatorService) *OperatorHandler {
	return &OperatorHandler{svc: svc}
}

// Register 登记作业员，id 与登录令牌中的 uid 一致
func (h *OperatorHandler) Register(c *gin.Context) {
	var req service.RegisterOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	op, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, op)
}
