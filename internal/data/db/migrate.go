package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/opengaia-backend/internal/data/repos/world"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&world.Record{},
	)
}
