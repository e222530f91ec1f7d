package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"jobpay/internal/domain"
	"jobpay/internal/engine"
	"jobpay/internal/engine/auth"
	"jobpay/internal/logger"
)

type AuthConfig struct {
	// ProfileHeader names the header carrying the caller's profile id.
	ProfileHeader string
	// AdminJWTSecret, when set, guards /admin routes with HS256 bearer tokens.
	AdminJWTSecret string
}

func (c AuthConfig) header() string {
	if strings.TrimSpace(c.ProfileHeader) == "" {
		return "profile_id"
	}
	return c.ProfileHeader
}

type profileKey struct{}

func withProfile(ctx context.Context, p domain.Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

func profileFromContext(ctx context.Context) (domain.Profile, huma.StatusError) {
	if p, ok := ctx.Value(profileKey{}).(domain.Profile); ok && p.ID != 0 {
		return p, nil
	}
	return domain.Profile{}, newAPIError(http.StatusUnauthorized, "unauthorized", "unauthorized", nil)
}

// profiledPrefixes are the route prefixes that act on behalf of a profile.
var profiledPrefixes = []string{"/contracts", "/jobs", "/balances"}

func relPath(basePath, p string) (string, bool) {
	if basePath == "" {
		return p, true
	}
	if p != basePath && !strings.HasPrefix(p, basePath+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, basePath), true
}

func needsProfile(rel string) bool {
	for _, prefix := range profiledPrefixes {
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return true
		}
	}
	return false
}

// newProfileMiddleware resolves the profile header for profile-scoped routes.
func newProfileMiddleware(basePath string, cfg AuthConfig, e engine.Engine) func(http.Handler) http.Handler {
	header := cfg.header()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rel, ok := relPath(basePath, req.URL.Path)
			if !ok || !needsProfile(rel) {
				next.ServeHTTP(w, req)
				return
			}
			p, err := e.ResolveProfile(req.Context(), req.Header.Get(header))
			switch {
			case errors.Is(err, auth.ErrMissingCredential):
				respondStatusError(w, newAPIError(http.StatusBadRequest, "missing_profile", header+" header is required", nil))
				return
			case errors.Is(err, auth.ErrUnauthenticated):
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "unauthorized", nil))
				return
			case err != nil:
				logger.FromContext(req.Context()).Error("resolve profile failed", "error", err)
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal server error", nil))
				return
			}
			noteProfile(req.Context(), p.ID)
			ctx := logger.WithProfileID(withProfile(req.Context(), p), p.ID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// newAdminMiddleware is a no-op when no admin secret is configured.
func newAdminMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rel, ok := relPath(basePath, req.URL.Path)
			if !ok || !strings.HasPrefix(rel, "/admin/") || strings.TrimSpace(cfg.AdminJWTSecret) == "" {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(req.Header.Get("Authorization"))
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "admin bearer token required", nil))
				return
			}
			claims, err := auth.VerifyAdminToken(cfg.AdminJWTSecret, token)
			if err != nil {
				logger.FromContext(req.Context()).Warn("admin token rejected", "error", err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			logger.FromContext(req.Context()).Debug("admin request", "subject", claims.Subject)
			next.ServeHTTP(w, req)
		})
	}
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
