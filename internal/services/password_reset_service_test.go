package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/auth"
	"github.com/epetcare/notifier/internal/models"
	"github.com/epetcare/notifier/pkg/crypto"
	apperrors "github.com/epetcare/notifier/pkg/errors"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	codes []string
	to    []string
}

func (f *fakeDispatcher) DispatchResetCode(_ context.Context, email, _ string, code string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	f.to = append(f.to, email)
	return nil
}

type resetFixture struct {
	db         *gorm.DB
	svc        *PasswordResetService
	dispatcher *fakeDispatcher
	now        *time.Time
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()

	db := openServiceTestDB(t)
	current := time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	guard, err := auth.NewGuardService(auth.GuardConfig{
		Secret: "guard-secret",
		TTL:    5 * time.Minute,
		Clock:  clock,
	})
	require.NoError(t, err)

	dispatcher := &fakeDispatcher{}
	svc, err := NewPasswordResetService(db, guard, dispatcher, 10*time.Minute, WithResetClock(clock))
	require.NoError(t, err)

	return &resetFixture{db: db, svc: svc, dispatcher: dispatcher, now: &current}
}

func (f *resetFixture) advance(d time.Duration) {
	*f.now = f.now.Add(d)
}

func (f *resetFixture) latestCode(t *testing.T, email string) string {
	t.Helper()
	var otp models.PasswordResetOTP
	require.NoError(t, f.db.Where("email = ?", email).Order("created_at DESC").First(&otp).Error)
	return otp.Code
}

func TestRequestStoresAndMailsCode(t *testing.T) {
	f := newResetFixture(t)
	seedOwnerWithPet(t, f.db, "dana@example.com")

	require.NoError(t, f.svc.Request(context.Background(), "  Dana@Example.com "))

	var otp models.PasswordResetOTP
	require.NoError(t, f.db.First(&otp).Error)
	require.Equal(t, "dana@example.com", otp.Email)
	require.Len(t, otp.Code, 6)
	require.WithinDuration(t, f.now.Add(10*time.Minute), otp.ExpiresAt, time.Second)
	require.False(t, otp.Consumed)

	require.Equal(t, []string{otp.Code}, f.dispatcher.codes)
	require.Equal(t, []string{"dana@example.com"}, f.dispatcher.to)
}

func TestRequestUnknownEmailIsSilent(t *testing.T) {
	f := newResetFixture(t)

	require.NoError(t, f.svc.Request(context.Background(), "nobody@example.com"))

	var count int64
	require.NoError(t, f.db.Model(&models.PasswordResetOTP{}).Count(&count).Error)
	require.Zero(t, count)
	require.Empty(t, f.dispatcher.codes)
}

func TestVerifyWithinWindow(t *testing.T) {
	f := newResetFixture(t)
	seedOwnerWithPet(t, f.db, "dana@example.com")
	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))
	code := f.latestCode(t, "dana@example.com")

	f.advance(9*time.Minute + 59*time.Second)
	token, err := f.svc.Verify(context.Background(), "dana@example.com", code)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestVerifyRejectsExpiredCode(t *testing.T) {
	f := newResetFixture(t)
	seedOwnerWithPet(t, f.db, "dana@example.com")
	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))
	code := f.latestCode(t, "dana@example.com")

	f.advance(10*time.Minute + time.Second)
	_, err := f.svc.Verify(context.Background(), "dana@example.com", code)
	require.ErrorIs(t, err, apperrors.ErrResetCodeInvalid)
}

func TestVerifyRejectsWrongCodeAndCountsAttempts(t *testing.T) {
	f := newResetFixture(t)
	seedOwnerWithPet(t, f.db, "dana@example.com")
	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))
	code := f.latestCode(t, "dana@example.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err := f.svc.Verify(context.Background(), "dana@example.com", wrong)
	require.ErrorIs(t, err, apperrors.ErrResetCodeInvalid)

	var otp models.PasswordResetOTP
	require.NoError(t, f.db.First(&otp).Error)
	require.EqualValues(t, 1, otp.Attempts)
}

func TestVerifyLocksOutAfterRepeatedFailures(t *testing.T) {
	f := newResetFixture(t)
	seedOwnerWithPet(t, f.db, "dana@example.com")
	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))
	code := f.latestCode(t, "dana@example.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	for i := 0; i < maxVerifyAttempts; i++ {
		_, err := f.svc.Verify(context.Background(), "dana@example.com", wrong)
		require.ErrorIs(t, err, apperrors.ErrResetCodeInvalid)
	}

	// The right code no longer helps once the row is locked out.
	_, err := f.svc.Verify(context.Background(), "dana@example.com", code)
	require.ErrorIs(t, err, apperrors.ErrResetCodeInvalid)
}

func TestVerifyOnlyConsultsNewestCode(t *testing.T) {
	f := newResetFixture(t)
	seedOwnerWithPet(t, f.db, "dana@example.com")

	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))
	older := f.latestCode(t, "dana@example.com")

	f.advance(time.Minute)
	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))
	newer := f.latestCode(t, "dana@example.com")

	if older == newer {
		t.Skip("codes collided, nothing to distinguish")
	}

	_, err := f.svc.Verify(context.Background(), "dana@example.com", older)
	require.ErrorIs(t, err, apperrors.ErrResetCodeInvalid)

	token, err := f.svc.Verify(context.Background(), "dana@example.com", newer)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestConsumeSetsPasswordOnce(t *testing.T) {
	f := newResetFixture(t)
	owner, _ := seedOwnerWithPet(t, f.db, "dana@example.com")
	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))
	code := f.latestCode(t, "dana@example.com")

	token, err := f.svc.Verify(context.Background(), "dana@example.com", code)
	require.NoError(t, err)

	require.NoError(t, f.svc.Consume(context.Background(), token, "brand-new-password"))

	var reloaded models.Owner
	require.NoError(t, f.db.First(&reloaded, "id = ?", owner.ID).Error)
	require.True(t, crypto.VerifyPassword(reloaded.PasswordHash, "brand-new-password"))

	var otp models.PasswordResetOTP
	require.NoError(t, f.db.First(&otp).Error)
	require.True(t, otp.Consumed)
	require.NotNil(t, otp.ConsumedAt)

	// The guard token is bound to a now-consumed row; a second set fails.
	err = f.svc.Consume(context.Background(), token, "another-password-1")
	require.ErrorIs(t, err, apperrors.ErrResetCodeInvalid)
}

func TestConsumeRejectsShortPassword(t *testing.T) {
	f := newResetFixture(t)
	err := f.svc.Consume(context.Background(), "irrelevant", "short")
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrResetCodeInvalid)
}

func TestConsumeRejectsGarbageToken(t *testing.T) {
	f := newResetFixture(t)
	err := f.svc.Consume(context.Background(), "not-a-token", "brand-new-password")
	require.ErrorIs(t, err, apperrors.ErrResetCodeInvalid)
}

func TestPurgeExpired(t *testing.T) {
	f := newResetFixture(t)
	seedOwnerWithPet(t, f.db, "dana@example.com")

	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))
	f.advance(11 * time.Minute)
	require.NoError(t, f.svc.Request(context.Background(), "dana@example.com"))

	removed, err := f.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var count int64
	require.NoError(t, f.db.Model(&models.PasswordResetOTP{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
