package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/models"
	"github.com/epetcare/notifier/pkg/logger"
	"github.com/epetcare/notifier/pkg/mail"
	"github.com/epetcare/notifier/pkg/metrics"
)

const (
	categoryNotification  = "notification"
	categoryPasswordReset = "password-reset"
)

// ErrNoTransport indicates that neither a primary provider nor an enabled
// SMTP fallback is configured.
var ErrNoTransport = errors.New("dispatch: no mail transport configured")

// Brand customises the rendered email copy.
type Brand struct {
	Name    string
	LogoURL string
}

// Option customises the Pipeline.
type Option func(*Pipeline)

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithBrand overrides the default brand copy.
func WithBrand(brand Brand) Option {
	return func(p *Pipeline) {
		if brand.Name != "" {
			p.brand = brand
		}
	}
}

// Pipeline renders and delivers email for notification and OTP records.
//
// Delivery is at-least-once: a provider may accept a message that a crashed
// process never recorded, and the sweeper will send it again. The emailed
// flag transition is the only coordination point, performed as a conditional
// update so that concurrent inline and sweep dispatches cannot both claim it.
type Pipeline struct {
	db       *gorm.DB
	primary  mail.Mailer
	fallback mail.Mailer
	brand    Brand
	now      func() time.Time
	log      *zap.Logger
}

// NewPipeline constructs a Pipeline. primary may be nil (fallback-only);
// fallback may be nil or disabled.
func NewPipeline(db *gorm.DB, primary, fallback mail.Mailer, opts ...Option) (*Pipeline, error) {
	if db == nil {
		return nil, errors.New("dispatch: db is required")
	}

	p := &Pipeline{
		db:       db,
		primary:  primary,
		fallback: fallback,
		brand:    Brand{Name: "ePetCare"},
		now:      time.Now,
		log:      logger.WithModule("dispatch"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// DispatchNotification attempts email delivery for the notification row and,
// on provider acceptance, flips emailed=false→true. The returned error is
// informational: callers on the clinical write path swallow it, the sweeper
// counts it. Rows whose owner has no address are marked emailed immediately
// so they are not retried forever.
func (p *Pipeline) DispatchNotification(ctx context.Context, notificationID string) error {
	var notif models.Notification
	if err := p.db.WithContext(ctx).First(&notif, "id = ?", notificationID).Error; err != nil {
		return fmt.Errorf("dispatch: load notification: %w", err)
	}

	if notif.Emailed {
		return nil
	}

	var owner models.Owner
	if err := p.db.WithContext(ctx).First(&owner, "id = ?", notif.OwnerID).Error; err != nil {
		return fmt.Errorf("dispatch: load owner: %w", err)
	}

	address := strings.TrimSpace(owner.Email)
	if address == "" {
		p.log.Info("notification has no recipient address, marking emailed",
			zap.String("notification_id", notif.ID),
			zap.String("owner_id", owner.ID))
		return p.markEmailed(ctx, notif.ID)
	}

	text, html, err := renderBodies(notificationTextTmpl, notificationHTMLTmpl, emailData{
		Brand:     p.brand.Name,
		LogoURL:   p.brand.LogoURL,
		Title:     notif.Title,
		Message:   notif.Message,
		OwnerName: owner.Name,
		CreatedAt: notif.CreatedAt,
	})
	if err != nil {
		return err
	}

	msg := mail.Message{
		To:       []string{address},
		Subject:  fmt.Sprintf("%s: %s", p.brand.Name, notif.Title),
		Text:     text,
		HTML:     html,
		Category: categoryNotification,
	}

	if err := p.send(ctx, msg, string(notif.Kind)); err != nil {
		return err
	}

	return p.markEmailed(ctx, notif.ID)
}

// DispatchResetCode emails a password reset code. OTP rows carry no emailed
// flag; the row's existence is the delivery attempt.
func (p *Pipeline) DispatchResetCode(ctx context.Context, email, ownerName, code string, ttl time.Duration) error {
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes <= 0 {
		minutes = 10
	}

	text, html, err := renderBodies(otpTextTmpl, otpHTMLTmpl, emailData{
		Brand:     p.brand.Name,
		LogoURL:   p.brand.LogoURL,
		OwnerName: ownerName,
		Code:      code,
		Minutes:   minutes,
	})
	if err != nil {
		return err
	}

	msg := mail.Message{
		To:       []string{email},
		Subject:  fmt.Sprintf("Your %s password reset code", p.brand.Name),
		Text:     text,
		HTML:     html,
		Category: categoryPasswordReset,
	}

	return p.send(ctx, msg, "password_reset")
}

func (p *Pipeline) send(ctx context.Context, msg mail.Message, template string) error {
	var primaryErr error
	if p.primary != nil {
		primaryErr = p.primary.Send(ctx, msg)
		if primaryErr == nil {
			metrics.DispatchAttempts.WithLabelValues(template, "success").Inc()
			return nil
		}
		p.log.Warn("primary provider send failed",
			zap.String("template", template),
			zap.Error(primaryErr))
	}

	if p.fallback != nil {
		fallbackErr := p.fallback.Send(ctx, msg)
		switch {
		case fallbackErr == nil:
			if primaryErr != nil {
				metrics.DispatchFallbacks.Inc()
			}
			metrics.DispatchAttempts.WithLabelValues(template, "success").Inc()
			return nil
		case errors.Is(fallbackErr, mail.ErrSMTPDisabled):
			// Fallback is off by policy; keep the primary failure as the cause.
		default:
			p.log.Warn("smtp fallback send failed",
				zap.String("template", template),
				zap.Error(fallbackErr))
			if primaryErr == nil {
				primaryErr = fallbackErr
			}
		}
	}

	metrics.DispatchAttempts.WithLabelValues(template, "failure").Inc()
	if primaryErr != nil {
		return primaryErr
	}
	return ErrNoTransport
}

// markEmailed performs the conditional emailed flag transition. RowsAffected
// is the commit gate: zero means a concurrent dispatch already claimed the
// row, which is not an error.
func (p *Pipeline) markEmailed(ctx context.Context, notificationID string) error {
	now := p.now().UTC()
	result := p.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND emailed = ?", notificationID, false).
		Updates(map[string]any{
			"emailed":    true,
			"emailed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("dispatch: mark emailed: %w", result.Error)
	}
	return nil
}
