package session

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Handler struct {
	logger *zap.SugaredLogger
}

func NewHandler(logger *zap.SugaredLogger) *Handler {
	return &Handler{logger: logger}
}

// MeResponse describes the caller's own session.
type MeResponse struct {
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Me returns the claims of the bearer token. It must be mounted behind the
// access guard, which puts the verified claims in the request context.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := FromContext(r.Context())
	if !ok {
		h.logger.Warnw("me called without verified claims", "path", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Authorization token required", "kind": "unauthorized"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(MeResponse{
		AccountID: c.AccountID,
		Email:     c.Email,
		Role:      string(c.Role),
		ExpiresAt: c.Expiry().UTC(),
	})
}
