package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"jobpay/internal/domain"
)

const AdminRole = "admin"

var (
	// ErrMissingCredential means no profile id was supplied at all.
	ErrMissingCredential = errors.New("profile_id header is required")
	ErrUnauthenticated   = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

// ForbiddenError indicates the caller is not a party to the resource.
type ForbiddenError struct {
	Resource string
	ID       int64
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("profile is not a party to %s %d", e.Resource, e.ID)
}

func (e ForbiddenError) Is(target error) bool { return target == ErrForbidden }

type ProfileGetter interface {
	GetProfile(ctx context.Context, id int64) (domain.Profile, error)
}

// Service resolves callers against the profile store.
type Service struct {
	Profiles ProfileGetter
}

// Resolve maps the raw profile header value to a profile.
func (s Service) Resolve(ctx context.Context, raw string) (domain.Profile, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Profile{}, ErrMissingCredential
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return domain.Profile{}, ErrUnauthenticated
	}
	p, err := s.Profiles.GetProfile(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Profile{}, ErrUnauthenticated
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("resolve profile %d: %w", id, err)
	}
	return p, nil
}

func RequireParty(c domain.Contract, caller domain.Profile) error {
	if c.HasParty(caller.ID) {
		return nil
	}
	return ForbiddenError{Resource: "contract", ID: c.ID}
}

type AdminClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// IssueAdminToken signs an HS256 token carrying the admin role.
func IssueAdminToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if subject == "" {
		return "", errors.New("subject required")
	}
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: []string{AdminRole},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyAdminToken accepts a valid HS256 token whose roles include admin.
func VerifyAdminToken(secret, token string) (AdminClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return AdminClaims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &AdminClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return AdminClaims{}, err
	}
	if !parsed.Valid {
		return AdminClaims{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return AdminClaims{}, errors.New("subject claim required")
	}
	if !slices.Contains(claims.Roles, AdminRole) {
		return AdminClaims{}, ErrForbidden
	}
	return *claims, nil
}
