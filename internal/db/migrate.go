package db

import (
	"fmt"

	"github.com/tutorbookapp/relay/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the GORM models owned or read by the relay service.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Location{},
		&models.Chat{},
		&models.ChatParticipant{},
		&models.ChatMessage{},
		&models.RelayLog{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
