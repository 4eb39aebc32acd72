package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Authenticator checks credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*users.User, error)
}

// Handler serves POST /auth/login.
type Handler struct {
	authn  Authenticator
	issuer *Issuer
	logger *logging.Logger
}

// NewHandler creates a login handler.
func NewHandler(authn Authenticator, issuer *Issuer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{authn: authn, issuer: issuer, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
}

// Login exchanges credentials for a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := h.authn.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorMessage(err))
		return
	case errors.Is(err, users.ErrInactive):
		httpx.WriteError(w, http.StatusForbidden, "account is inactive")
		return
	case err != nil:
		h.logger.Error("login failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, expires, err := h.issuer.Issue(*u)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.logger.Info("user logged in", "user_id", u.ID, "role", u.Role)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expires,
		Role:      string(u.Role),
		UserID:    u.ID.String(),
		Name:      u.FullName,
	})
}
