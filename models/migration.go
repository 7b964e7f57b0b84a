package models

import "gorm.io/gorm"

func MigrateTable(db *gorm.DB) error {
	if db == nil {
		return ErrStoreNotConfigured
	}
	return db.AutoMigrate(&Anomaly{})
}
