package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/auth"
	"github.com/epetcare/notifier/internal/dispatch"
	"github.com/epetcare/notifier/internal/models"
	"github.com/epetcare/notifier/internal/services"
	"github.com/epetcare/notifier/internal/sweep"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	pipeline, err := dispatch.NewPipeline(db, nil, nil)
	require.NoError(t, err)

	notifications, err := services.NewNotificationService(db)
	require.NoError(t, err)

	recorder, err := services.NewEventRecorder(db, nil)
	require.NoError(t, err)

	guard, err := auth.NewGuardService(auth.GuardConfig{Secret: "test-secret"})
	require.NoError(t, err)

	reset, err := services.NewPasswordResetService(db, guard, nil, 10*time.Minute)
	require.NoError(t, err)

	sweeper, err := sweep.NewSweeper(db, pipeline, 10)
	require.NoError(t, err)

	router, err := NewRouter(Dependencies{
		Notifications: notifications,
		Recorder:      recorder,
		PasswordReset: reset,
		Sweeper:       sweeper,
	})
	require.NoError(t, err)

	return router, db
}

func TestHealthRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestListNotificationsRequiresOwner(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListNotifications(t *testing.T) {
	router, db := newTestRouter(t)

	owner := models.Owner{Name: "Dana", Email: "dana@example.com"}
	require.NoError(t, db.Create(&owner).Error)
	notif := models.Notification{OwnerID: owner.ID, Kind: models.KindGeneric, Title: "Hi", Message: "There"}
	require.NoError(t, db.Create(&notif).Error)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/notifications?owner_id="+owner.ID, nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), notif.ID)
	require.Contains(t, w.Body.String(), `"unread_count":1`)
}

func TestCreateAppointmentRoute(t *testing.T) {
	router, db := newTestRouter(t)

	owner := models.Owner{Name: "Dana", Email: "dana@example.com"}
	require.NoError(t, db.Create(&owner).Error)
	pet := models.Pet{OwnerID: owner.ID, Name: "Rex", Species: "dog"}
	require.NoError(t, db.Create(&pet).Error)

	body := fmt.Sprintf(`{"pet_id":%q,"date_time":"2026-03-03T14:30:00Z","reason":"Vaccination"}`, pet.ID)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/clinic/appointments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestPasswordResetRequestValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/password-reset/request", strings.NewReader(`{"email":"not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordResetVerifyRejectsUnknownCode(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/password-reset/verify", strings.NewReader(`{"email":"dana@example.com","code":"123456"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Invalid or expired code")
}

func TestAdminSweepRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/sweep", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"processed":0`)
}
