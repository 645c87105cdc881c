package entity

import "time"

// BOMLine 产品物料清单行：每生产一个产品需要的物料数量
type BOMLine struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductCode string    `json:"product_code" gorm:"size:64;not null;uniqueIndex:idx_bom_product_material"`
	MaterialID  int64     `json:"material_id" gorm:"not null;uniqueIndex:idx_bom_product_material"`
	RequiredQty int       `json:"required_qty" gorm:"not null;check:required_qty > 0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Material *Material `json:"material,omitempty" gorm:"foreignKey:MaterialID"`
}

func (BOMLine) TableName() string {
	return "mes_bom_lines"
}

// MaterialAvailability 单行BOM的齐套情况
type MaterialAvailability struct {
	MaterialCode string `json:"material_code"`
	MaterialName string `json:"material_name"`
	RequiredQty  int    `json:"required_qty"`
	CurrentStock int    `json:"current_stock"`
	Sufficient   bool   `json:"sufficient"`
}

// CheckAvailability 按BOM逐行比较库存与单件用量，不修改任何状态
func CheckAvailability(lines []BOMLine) []MaterialAvailability {
	result := make([]MaterialAvailability, 0, len(lines))
	for _, line := range lines {
		av := MaterialAvailability{RequiredQty: line.RequiredQty}
		if line.Material != nil {
			av.MaterialCode = line.Material.Code
			av.MaterialName = line.Material.Name
			av.CurrentStock = line.Material.CurrentStock
			av.Sufficient = line.Material.CanSupply(line.RequiredQty)
		}
		result = append(result, av)
	}
	return result
}

// AllSufficient 所有物料是否齐套
func AllSufficient(items []MaterialAvailability) bool {
	for _, item := range items {
		if !item.Sufficient {
			return false
		}
	}
	return true
}
