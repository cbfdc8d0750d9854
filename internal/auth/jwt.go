package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/slimedodge/server/internal/config"
)

// RoleObserver is the only role issued today
const RoleObserver = "observer"

// ErrInvalidToken reports a token that failed signature, expiry or issuer checks
var ErrInvalidToken = eris.New("invalid token")

// Claims represents JWT claims structure
type Claims struct {
	jwt.RegisteredClaims

	ObserverID string `json:"observer_id"`
	Role       string `json:"role"`
}

// JWTService handles JWT token operations
type JWTService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewJWTService creates a new JWT service with configuration
func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Auth.JWTSecret),
		expiry: cfg.Auth.JWTExpiration,
		issuer: cfg.Auth.Issuer,
	}
}

// GenerateAccessToken issues a token for an observer
func (s *JWTService) GenerateAccessToken(observerID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   observerID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		ObserverID: observerID,
		Role:       RoleObserver,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, eris.Wrap(err, "failed to sign token")
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, eris.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, eris.Wrap(ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ObserverID == "" {
		return nil, eris.Wrap(ErrInvalidToken, "invalid token claims")
	}
	return claims, nil
}

// GetTokenExpiration returns the expiration time for access tokens
func (s *JWTService) GetTokenExpiration() time.Duration {
	return s.expiry
}
