package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type authService interface {
	Authenticate(ctx context.Context, email, password string) (*User, error)
	Profile(ctx context.Context, userID int64) (Profile, error)
	RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	RemoveSession(ctx context.Context, id string) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        authService
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service authService, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      httpx.NewValidator(),
	}
}

// MountRoutes registers the public auth routes. /auth/me is mounted behind
// RequireUser by the caller through MountProtected.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/auth/csrf", h.handleCSRF)
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
}

// MountProtected registers routes that need a signed-in partner.
func (h *Handler) MountProtected(r chi.Router) {
	r.Get("/auth/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

var errInvalidLogin = fmt.Errorf("email or password is invalid: %w", httpx.ErrUnauthorized)

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, errors.New("session missing"))
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.RespondError(w, errInvalidLogin)
		return
	case errors.Is(err, shared.ErrNotPartner):
		httpx.RespondError(w, fmt.Errorf("%w: only partners of the firm may sign in", httpx.ErrForbidden))
		return
	case err != nil:
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.sessionManager.Rotate(sess)
	sess.Delete(shared.CSRFSessionKey)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("partner signed in", slog.Int64("user_id", user.ID))

	httpx.JSON(w, http.StatusOK, Profile{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Partner:   true,
		CSRFToken: token,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromRequest(r)
	profile, err := h.service.Profile(r.Context(), actor.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: user no longer exists", httpx.ErrUnauthorized))
			return
		}
		h.logger.Error("load profile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context())); err == nil {
		profile.CSRFToken = token
	}
	httpx.JSON(w, http.StatusOK, profile)
}
