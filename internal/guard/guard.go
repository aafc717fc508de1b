// Package guard decides whether a caller may run a role-gated operation.
//
// The decision is one pure function over verified claims and the allowed
// role set. The HTTP middleware in this package is the authoritative
// boundary; internal/client reuses RoleAllowed for its advisory view gate.
package guard

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/session"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
)

type Decision int

const (
	Admit Decision = iota
	DenyUnauthorized
	DenyForbidden
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case DenyUnauthorized:
		return "unauthorized"
	case DenyForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// RoleAllowed reports whether role is in allowed. An empty allowed set
// admits every valid role.
func RoleAllowed(role entity.Role, allowed ...entity.Role) bool {
	if !role.Valid() {
		return false
	}
	return len(allowed) == 0 || slices.Contains(allowed, role)
}

// Decide maps verified claims to a decision. Nil claims mean the caller is
// unauthenticated.
func Decide(claims *session.Claims, allowed ...entity.Role) Decision {
	if claims == nil {
		return DenyUnauthorized
	}
	if !RoleAllowed(claims.Role, allowed...) {
		return DenyForbidden
	}
	return Admit
}

// Verifier is the part of session.Issuer the guard needs.
type Verifier interface {
	Verify(token string) (*session.Claims, error)
}

// Require returns a middleware admitting only bearer tokens whose role is in
// roles. Admitted requests carry the claims in their context.
func Require(v Verifier, logger *zap.SugaredLogger, roles ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromRequest(v, r)
			switch Decide(claims, roles...) {
			case DenyUnauthorized:
				logger.Debugw("guard rejected request", "path", r.URL.Path, "reason", err)
				writeError(w, apperr.Unauthorized(unauthorizedMessage(err)))
				return
			case DenyForbidden:
				logger.Infow("guard forbade request", "path", r.URL.Path, "account_id", claims.AccountID, "role", claims.Role)
				writeError(w, apperr.Forbidden("Insufficient role"))
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithClaims(r.Context(), claims)))
		})
	}
}

var errMissingToken = errors.New("missing bearer token")

func claimsFromRequest(v Verifier, r *http.Request) (*session.Claims, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, errMissingToken
	}
	return v.Verify(token)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, errMissingToken):
		return "Authorization token required"
	case errors.Is(err, session.ErrExpired):
		return "Token expired"
	default:
		return "Invalid token"
	}
}

func writeError(w http.ResponseWriter, e *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(e.Kind))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": e.Message, "kind": string(e.Kind)})
}
