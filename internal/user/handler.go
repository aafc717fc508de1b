package user

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/apperr"
)

const maxBodyBytes = 1 << 20

// Handler exposes HTTP endpoints for account operations.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SignupRequest request body for signup endpoint. A role sent by the client is ignored.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.svc.Signup(r.Context(), SignupInput{Handle: req.Username, Email: req.Email, Password: req.Password}); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, MessageResponse{Message: "User registered successfully"})
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	token, err := h.svc.Login(r.Context(), LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LoginResponse{Token: token, Message: "Login successful"})
}

type PromotedUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type PromoteResponse struct {
	Message string       `json:"message"`
	User    PromotedUser `json:"user"`
}

// Promote must be mounted behind the admin guard.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Promote(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PromoteResponse{
		Message: "User promoted to admin successfully",
		User:    PromotedUser{ID: a.ID, Email: a.Email, Role: string(a.Role)},
	})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// List must be mounted behind the admin guard.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.Profiles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeError(w, r, apperr.Validation("", "Invalid request body"))
		return false
	}
	return true
}

// writeError emits the kind and safe message only. Internal causes go to the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		h.logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", e.Err)
	} else {
		h.logger.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "kind", e.Kind, "field", e.Field)
	}
	h.writeJSON(w, apperr.HTTPStatus(e.Kind), map[string]string{"error": e.Message, "kind": string(e.Kind)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
