package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"audioscribe/pkg/domain"
)

const (
	defaultIssuer   = "audioscribe-auth"
	defaultAudience = "audioscribe-api"
	defaultTTL      = 24 * time.Hour
	defaultLeeway   = 30 * time.Second

	minSecretLength = 32
)

// ErrInvalidToken covers malformed, badly signed and expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the session claims embedded in an access token.
type Claims struct {
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	Role     domain.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Options tweaks claim validation behavior.
type Options struct {
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// Service issues and verifies HS256 session tokens with a fixed server secret.
// It is stateless: expiry is the only end-of-life mechanism.
type Service struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
}

// NewService builds a token service from the shared signing secret.
func NewService(secret string, opts Options) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d characters", minSecretLength)
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(opts.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Service{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		leeway:   leeway,
	}, nil
}

// Issue signs a session token for the user carrying identity and role.
func (s *Service) Issue(user domain.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns its claims.
// It does not check account liveness; callers re-fetch the user record.
func (s *Service) Verify(raw string) (Claims, error) {
	claims := Claims{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return claims, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// TTL reports the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
