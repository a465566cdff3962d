package database

import (
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Owner{},
		&models.Pet{},
		&models.Appointment{},
		&models.MedicalRecord{},
		&models.Prescription{},
		&models.Notification{},
		&models.PasswordResetOTP{},
	)
}
