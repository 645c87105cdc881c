package entity

import (
	"strings"
	"time"
)

// WorkOrderStatus 工单状态，只能单向推进
const (
	WOStatusWaiting    = "WAITING"
	WOStatusInProgress = "IN_PROGRESS"
	WOStatusCompleted  = "COMPLETED"
)

// WorkOrder 生产工单
type WorkOrder struct {
	ID                int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductCode       string     `json:"product_code" gorm:"size:64;not null;index"`
	TargetQty         int        `json:"target_qty" gorm:"not null;check:target_qty > 0"`
	CurrentQty        int        `json:"current_qty" gorm:"not null;default:0"`
	Status            string     `json:"status" gorm:"size:20;not null;default:WAITING;index"`
	AssignedMachineID *string    `json:"assigned_machine_id" gorm:"size:64;index:idx_wo_active_machine,unique,where:status = 'IN_PROGRESS'"`
	CreatedBy         string     `json:"created_by" gorm:"size:64"`
	AssignedAt        *time.Time `json:"assigned_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (WorkOrder) TableName() string {
	return "mes_work_orders"
}

// NewWorkOrder 创建待生产工单
func NewWorkOrder(productCode string, targetQty int, createdBy string) (*WorkOrder, error) {
	productCode = strings.TrimSpace(productCode)
	if productCode == "" {
		return nil, Invalidf("product code is required")
	}
	if targetQty <= 0 {
		return nil, Invalidf("target quantity must be positive, got %d", targetQty)
	}
	return &WorkOrder{
		ProductCode: productCode,
		TargetQty:   targetQty,
		CurrentQty:  0,
		Status:      WOStatusWaiting,
		CreatedBy:   createdBy,
	}, nil
}

// MachineID 已绑定的设备，未绑定返回空串
func (wo WorkOrder) MachineID() string {
	if wo.AssignedMachineID == nil {
		return ""
	}
	return *wo.AssignedMachineID
}

func (wo WorkOrder) IsCompleted() bool {
	return wo.Status == WOStatusCompleted
}

// BindMachine WAITING -> IN_PROGRESS，返回变更后的工单，调用方负责持久化
func (wo WorkOrder) BindMachine(machineID string, at time.Time) (WorkOrder, error) {
	if strings.TrimSpace(machineID) == "" {
		return wo, Invalidf("machine id is required")
	}
	if wo.Status != WOStatusWaiting {
		return wo, Invalidf("work order %d cannot be assigned in status %s", wo.ID, wo.Status)
	}
	m := machineID
	wo.Status = WOStatusInProgress
	wo.AssignedMachineID = &m
	wo.AssignedAt = &at
	return wo, nil
}

// AdvanceProgress 完成数+1，达到目标数量即转为 COMPLETED
func (wo WorkOrder) AdvanceProgress(at time.Time) (WorkOrder, error) {
	if wo.Status != WOStatusInProgress {
		return wo, Invalidf("work order %d cannot advance in status %s", wo.ID, wo.Status)
	}
	wo.CurrentQty++
	if wo.CurrentQty >= wo.TargetQty {
		wo.CurrentQty = wo.TargetQty
		wo.Status = WOStatusCompleted
		wo.CompletedAt = &at
	}
	return wo, nil
}
