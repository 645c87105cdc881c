package entity

import "gorm.io/gorm"

// AutoMigrate 自动迁移所有MES表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 物料与BOM
		&Material{},
		&StockMovement{},
		&BOMLine{},

		// 人员
		&Operator{},

		// 生产
		&WorkOrder{},
		&ProductionLog{},
	)
}
