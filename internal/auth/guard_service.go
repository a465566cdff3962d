package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultGuardTTL defines the fallback validity period for reset guards.
const DefaultGuardTTL = 5 * time.Minute

// GuardConfig bundles the configuration required to build a GuardService.
type GuardConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
}

// GuardClaims are embedded in the short-lived token handed out after a
// successful code verification. The token is bound to the exact OTP row that
// was verified so the password set can consume that row and no other.
type GuardClaims struct {
	OTPID string `json:"otp"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// GuardService issues and validates the reset-session guard tokens that
// bridge code verification and the actual password set.
type GuardService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewGuardService constructs a GuardService instance when provided with the required configuration.
func NewGuardService(cfg GuardConfig) (*GuardService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("guard: secret must be provided")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "epetcare"
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &GuardService{
		secret: []byte(cfg.Secret),
		issuer: issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// Issue signs a guard token for the supplied OTP row.
func (s *GuardService) Issue(otpID, email string) (string, error) {
	if otpID == "" {
		return "", errors.New("guard: otp id is required")
	}

	now := s.now()
	claims := &GuardClaims{
		OTPID: otpID,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("guard: sign token: %w", err)
	}

	return signed, nil
}

// Validate parses and validates a guard token, returning its claims.
func (s *GuardService) Validate(tokenString string) (*GuardClaims, error) {
	if tokenString == "" {
		return nil, errors.New("guard: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.issuer),
	)

	var claims GuardClaims
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("guard: parse token: %w", err)
	}

	if claims.OTPID == "" {
		return nil, errors.New("guard: token missing otp binding")
	}

	return &claims, nil
}
