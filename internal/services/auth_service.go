package services

import (
	"strings"

	"device-ingest/internal/device"
	"device-ingest/internal/ratelimit"

	"golang.org/x/exp/slog"
)

const bearerPrefix = "Bearer "

// AuthContext proves that a request came from a validated device. It lives
// only as long as the request.
type AuthContext struct {
	DeviceID   string
	Credential string
}

// CredentialValidator is the part of the device registry the guard needs.
type CredentialValidator interface {
	Validate(identity, credential string) bool
}

// AuthService admits device requests: it parses the bearer credential,
// validates (or auto-registers) the device and applies the rate limit.
type AuthService struct {
	registry CredentialValidator
	limiter  ratelimit.Limiter
	log      *slog.Logger
}

func NewAuthService(registry CredentialValidator, limiter ratelimit.Limiter, log *slog.Logger) *AuthService {
	return &AuthService{
		registry: registry,
		limiter:  limiter,
		log:      log.With("component", "auth_service"),
	}
}

// ParseDeviceToken splits an Authorization header of the form
// "Bearer <credential>:<identity>". Segments after a second ':' are ignored.
func ParseDeviceToken(header string) (credential, identity string, err error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", "", ErrMissingOrMalformedHeader
	}

	fields := strings.Split(header[len(bearerPrefix):], ":")
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return "", "", ErrMalformedToken
	}
	credential, identity = fields[0], fields[1]
	if !device.ValidIdentity(identity) {
		return "", "", ErrInvalidIdentityFormat
	}
	return credential, identity, nil
}

// Authenticate runs the admission pipeline for one request.
func (s *AuthService) Authenticate(header string) (*AuthContext, error) {
	// Step 1-3: header shape, token shape, identity format
	credential, identity, err := ParseDeviceToken(header)
	if err != nil {
		return nil, err
	}

	// Step 4: credential check, auto-registering unknown devices
	if !s.registry.Validate(identity, credential) {
		s.log.Warn("credential mismatch", "device_id", identity)
		return nil, ErrCredentialMismatch
	}

	// Step 5: rate limit
	if !s.limiter.Admit(identity) {
		rejected := &Error{Kind: KindRateLimitExceeded, Message: ErrRateLimitExceeded.Message}
		if advisor, ok := s.limiter.(ratelimit.RetryAdvisor); ok {
			rejected.RetryAfter = advisor.RetryAfter(identity)
		}
		s.log.Debug("rate limit exceeded", "device_id", identity)
		return nil, rejected
	}

	return &AuthContext{DeviceID: identity, Credential: credential}, nil
}
