package service

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// MaterialReceivedPayload 来料入库事件
type MaterialReceivedPayload struct {
	MaterialCode string `json:"material_code"`
	MaterialName string `json:"material_name"`
	Amount       int    `json:"amount"`
	CurrentStock int    `json:"current_stock"`
}

// OrderPayload 工单创建/派工/完工事件
type OrderPayload struct {
	OrderID     int64  `json:"order_id"`
	ProductCode string `json:"product_code"`
	Status      string `json:"status"`
	CurrentQty  int    `json:"current_qty"`
	TargetQty   int    `json:"target_qty"`
	MachineID   string `json:"machine_id,omitempty"`
}

func (p OrderPayload) EventMachineID() string { return p.MachineID }

func orderPayload(wo *entity.WorkOrder) OrderPayload {
	return OrderPayload{
		OrderID:     wo.ID,
		ProductCode: wo.ProductCode,
		Status:      wo.Status,
		CurrentQty:  wo.CurrentQty,
		TargetQty:   wo.TargetQty,
		MachineID:   wo.MachineID(),
	}
}

// ProductionReportedPayload 单件报工事件
type ProductionReportedPayload struct {
	LogID        int64   `json:"log_id"`
	OrderID      int64   `json:"order_id"`
	ProductCode  string  `json:"product_code"`
	MachineID    string  `json:"machine_id"`
	SerialNo     string  `json:"serial_no"`
	Result       string  `json:"result"`
	DefectCode   *string `json:"defect_code,omitempty"`
	OperatorName string  `json:"operator_name"`
	CurrentQty   int     `json:"current_qty"`
	TargetQty    int     `json:"target_qty"`
	Status       string  `json:"status"`
}

func (p ProductionReportedPayload) EventMachineID() string { return p.MachineID }

// ShortagePayload 报工缺料事件
type ShortagePayload struct {
	OrderID      int64  `json:"order_id"`
	MachineID    string `json:"machine_id"`
	MaterialCode string `json:"material_code"`
	MaterialName string `json:"material_name"`
	Required     int    `json:"required"`
	Available    int    `json:"available"`
}

func (p ShortagePayload) EventMachineID() string { return p.MachineID }
