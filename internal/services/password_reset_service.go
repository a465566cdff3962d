package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/auth"
	"github.com/epetcare/notifier/internal/models"
	"github.com/epetcare/notifier/pkg/crypto"
	apperrors "github.com/epetcare/notifier/pkg/errors"
	"github.com/epetcare/notifier/pkg/logger"
	"github.com/epetcare/notifier/pkg/metrics"
)

const (
	resetCodeDigits   = 6
	maxVerifyAttempts = 5
	minPasswordLength = 8
)

// ResetDispatcher delivers reset codes over email.
type ResetDispatcher interface {
	DispatchResetCode(ctx context.Context, email, ownerName, code string, ttl time.Duration) error
}

// PasswordResetService owns the OTP lifecycle: issuing codes, verifying them,
// and consuming exactly one verified code per password set. Every rejection
// surfaces the same generic error so callers cannot distinguish unknown
// emails, expired codes, and wrong codes.
type PasswordResetService struct {
	db         *gorm.DB
	guard      *auth.GuardService
	dispatcher ResetDispatcher
	codeTTL    time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// PasswordResetOption customises a PasswordResetService.
type PasswordResetOption func(*PasswordResetService)

// WithResetClock overrides the service clock, used by tests.
func WithResetClock(clock func() time.Time) PasswordResetOption {
	return func(s *PasswordResetService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewPasswordResetService constructs a PasswordResetService. dispatcher may
// be nil, in which case codes are stored but never mailed.
func NewPasswordResetService(db *gorm.DB, guard *auth.GuardService, dispatcher ResetDispatcher, codeTTL time.Duration, opts ...PasswordResetOption) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset service: db is required")
	}
	if guard == nil {
		return nil, errors.New("password reset service: guard service is required")
	}
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}

	svc := &PasswordResetService{
		db:         db,
		guard:      guard,
		dispatcher: dispatcher,
		codeTTL:    codeTTL,
		now:        time.Now,
		log:        logger.WithModule("password_reset"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Request issues a fresh code for the owner behind the email and mails it.
// Unknown emails succeed silently so the endpoint cannot be used to probe
// which addresses have accounts.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)
	if email == "" {
		return apperrors.NewBadRequest("Email is required")
	}

	var owner models.Owner
	if err := s.db.WithContext(ctx).First(&owner, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.OTPRequests.WithLabelValues("unknown_email").Inc()
			s.log.Debug("reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("password reset service: load owner: %w", err)
	}

	code, err := crypto.GenerateNumericCode(resetCodeDigits)
	if err != nil {
		return fmt.Errorf("password reset service: generate code: %w", err)
	}

	otp := models.PasswordResetOTP{
		Email:     email,
		Code:      code,
		ExpiresAt: s.now().UTC().Add(s.codeTTL),
	}
	if err := s.db.WithContext(ctx).Create(&otp).Error; err != nil {
		return fmt.Errorf("password reset service: store code: %w", err)
	}

	metrics.OTPRequests.WithLabelValues("issued").Inc()

	if s.dispatcher != nil {
		if err := s.dispatcher.DispatchResetCode(ctx, email, owner.Name, code, s.codeTTL); err != nil {
			// The row exists; the owner can request again. Still a silent
			// success towards the caller.
			s.log.Error("failed to mail reset code", zap.Error(err))
		}
	}

	return nil
}

// Verify checks a submitted code against the most recent live code for the
// email and, on success, returns a short-lived guard token bound to that
// code row. Older outstanding codes are never consulted.
func (s *PasswordResetService) Verify(ctx context.Context, email, code string) (string, error) {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)

	otp, err := s.latestLiveCode(ctx, email)
	if err != nil {
		return "", err
	}
	if otp == nil {
		metrics.OTPVerifications.WithLabelValues("rejected").Inc()
		return "", apperrors.ErrResetCodeInvalid
	}

	if otp.Code != code {
		if err := s.db.WithContext(ctx).Model(otp).
			Update("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			s.log.Warn("failed to record verification attempt", zap.Error(err))
		}
		metrics.OTPVerifications.WithLabelValues("rejected").Inc()
		return "", apperrors.ErrResetCodeInvalid
	}

	token, err := s.guard.Issue(otp.ID, email)
	if err != nil {
		return "", fmt.Errorf("password reset service: issue guard: %w", err)
	}

	metrics.OTPVerifications.WithLabelValues("success").Inc()
	return token, nil
}

// Consume validates the guard token, burns the code row it is bound to, and
// sets the new password. The conditional consumed flip is the single-use
// gate: a second consume of the same token finds zero rows to update.
func (s *PasswordResetService) Consume(ctx context.Context, guardToken, newPassword string) error {
	ctx = ensureContext(ctx)

	if len(newPassword) < minPasswordLength {
		return apperrors.NewBadRequest(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}

	claims, err := s.guard.Validate(guardToken)
	if err != nil {
		return apperrors.ErrResetCodeInvalid
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("password reset service: hash password: %w", err)
	}

	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PasswordResetOTP{}).
			Where("id = ? AND consumed = ? AND expires_at > ?", claims.OTPID, false, now).
			Updates(map[string]any{
				"consumed":    true,
				"consumed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("password reset service: consume code: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrResetCodeInvalid
		}

		res = tx.Model(&models.Owner{}).
			Where("email = ?", claims.Email).
			Update("password_hash", hash)
		if res.Error != nil {
			return fmt.Errorf("password reset service: set password: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrResetCodeInvalid
		}
		return nil
	})
}

// PurgeExpired deletes expired and consumed code rows. The scheduler runs it
// daily.
func (s *PasswordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	res := s.db.WithContext(ctx).
		Where("expires_at <= ? OR consumed = ?", s.now().UTC(), true).
		Delete(&models.PasswordResetOTP{})
	if res.Error != nil {
		return 0, fmt.Errorf("password reset service: purge codes: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Info("purged reset codes", zap.Int64("rows", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// latestLiveCode returns the newest unconsumed, unexpired, not locked-out
// code row for the email, or nil when none qualifies.
func (s *PasswordResetService) latestLiveCode(ctx context.Context, email string) (*models.PasswordResetOTP, error) {
	if email == "" {
		return nil, nil
	}

	var otp models.PasswordResetOTP
	err := s.db.WithContext(ctx).
		Where("email = ? AND consumed = ?", email, false).
		Order("created_at DESC").
		First(&otp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("password reset service: load code: %w", err)
	}

	if !s.now().UTC().Before(otp.ExpiresAt) {
		return nil, nil
	}
	if otp.Attempts >= maxVerifyAttempts {
		return nil, nil
	}
	return &otp, nil
}
