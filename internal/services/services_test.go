package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/models"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Owner{},
		&models.Pet{},
		&models.Appointment{},
		&models.MedicalRecord{},
		&models.Prescription{},
		&models.Notification{},
		&models.PasswordResetOTP{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func seedOwnerWithPet(t *testing.T, db *gorm.DB, email string) (models.Owner, models.Pet) {
	t.Helper()

	owner := models.Owner{Name: "Dana", Email: email}
	require.NoError(t, db.Create(&owner).Error)

	pet := models.Pet{OwnerID: owner.ID, Name: "Rex", Species: "dog"}
	require.NoError(t, db.Create(&pet).Error)

	return owner, pet
}
