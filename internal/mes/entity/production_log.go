package entity

import (
	"strings"
	"time"
)

// 报工结果
const (
	ResultOK = "OK"
	ResultNG = "NG"
)

// ProductionLog 单件生产记录（5M1E），只追加不修改
type ProductionLog struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	WorkOrderID int64     `json:"work_order_id" gorm:"not null;index"`
	ProductCode string    `json:"product_code" gorm:"size:64;not null"`
	MachineID   string    `json:"machine_id" gorm:"size:64;not null;index"`
	SerialNo    string    `json:"serial_no" gorm:"size:100;index"`
	Result      string    `json:"result" gorm:"size:2;not null"`
	DefectCode  *string   `json:"defect_code" gorm:"size:50"`
	OperatorID  *string   `json:"operator_id" gorm:"size:64;index"`
	ProducedAt  time.Time `json:"produced_at" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`

	Operator *Operator `json:"operator,omitempty" gorm:"foreignKey:OperatorID"`
}

func (ProductionLog) TableName() string {
	return "mes_production_logs"
}

// OperatorName 作业员姓名，匿名时为 system
func (l ProductionLog) OperatorName() string {
	if l.Operator != nil && l.Operator.Name != "" {
		return l.Operator.Name
	}
	return AnonymousOperatorName
}

// NormalizeResult 校验报工结果与不良代码，OK 时丢弃不良代码
func NormalizeResult(result, defectCode string) (string, *string, error) {
	result = strings.ToUpper(strings.TrimSpace(result))
	defectCode = strings.TrimSpace(defectCode)
	switch result {
	case ResultOK:
		return result, nil, nil
	case ResultNG:
		if defectCode == "" {
			return "", nil, Invalidf("defect code is required for NG result")
		}
		return result, &defectCode, nil
	default:
		return "", nil, Invalidf("unknown result %q", result)
	}
}
