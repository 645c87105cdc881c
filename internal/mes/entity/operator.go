package entity

import "time"

// AnonymousOperatorName 无法识别作业员时的显示名
const AnonymousOperatorName = "system"

// Operator 作业员，ID 与登录令牌中的 uid 一致
type Operator struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	Name      string    `json:"name" gorm:"size:64;not null"`
	Email     string    `json:"email" gorm:"size:128"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Operator) TableName() string {
	return "mes_operators"
}
