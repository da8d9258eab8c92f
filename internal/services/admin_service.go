package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer = "device-ingest"
	roleAdmin   = "admin"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminService exchanges the operator API key for short-lived admin JWTs
// and validates them on admin routes.
type AdminService struct {
	secret  []byte
	ttl     time.Duration
	keyHash string
	now     func() time.Time
}

func NewAdminService(secret string, ttl time.Duration, apiKeyHash string) *AdminService {
	return &AdminService{
		secret:  []byte(secret),
		ttl:     ttl,
		keyHash: apiKeyHash,
		now:     time.Now,
	}
}

// HashAPIKey returns the bcrypt hash to configure as ADMIN_API_KEY_HASH.
func HashAPIKey(apiKey string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckAPIKey reports whether apiKey matches the configured hash. With no
// hash configured every key is refused.
func (s *AdminService) CheckAPIKey(apiKey string) bool {
	if s.keyHash == "" || apiKey == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.keyHash), []byte(apiKey)) == nil
}

// IssueToken returns a signed admin token for a valid API key.
func (s *AdminService) IssueToken(apiKey string) (string, time.Time, error) {
	if !s.CheckAPIKey(apiKey) {
		return "", time.Time{}, ErrUnauthorized
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		Role: roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   roleAdmin,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing admin token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies an admin token.
func (s *AdminService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != roleAdmin {
		return nil, errors.New("token lacks admin role")
	}

	return claims, nil
}
