// Package http exposes the licensing engine's narrow contract to the
// projection shell over a loopback HTTP API.
package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	apierrors "github.com/paramita1949/C-Canvas-sub005/internal/errors"
	"github.com/paramita1949/C-Canvas-sub005/internal/infrastructure"
	"github.com/paramita1949/C-Canvas-sub005/internal/license"
)

var validate = validator.New()

// AuthHandler handles the shell-facing auth endpoints.
type AuthHandler struct {
	manager      *license.Manager
	logger       *slog.Logger
	loginLimiter *rate.Limiter
}

// NewAuthHandler creates the handler. The rate limiter throttles login and
// device-reset attempts as a brake against local credential stuffing.
func NewAuthHandler(manager *license.Manager, logger *slog.Logger, loginRPS float64, loginBurst int) *AuthHandler {
	return &AuthHandler{
		manager:      manager,
		logger:       logger.With(slog.String("handler", "auth")),
		loginLimiter: rate.NewLimiter(rate.Limit(loginRPS), loginBurst),
	}
}

// LoginRequest is the sign-in payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// Bind implements the render.Binder interface
func (req *LoginRequest) Bind(r *http.Request) error {
	req.Username = strings.TrimSpace(req.Username)
	return validate.Struct(req)
}

// RegisterRequest is the account creation payload.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// Bind implements the render.Binder interface
func (req *RegisterRequest) Bind(r *http.Request) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	return validate.Struct(req)
}

// ResetDevicesRequest re-confirms the password for a device reset.
type ResetDevicesRequest struct {
	Password string `json:"password" validate:"required"`
}

// Bind implements the render.Binder interface
func (req *ResetDevicesRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// ProjectionResponse answers the feature gate check.
type ProjectionResponse struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// StatusResponse wraps the display summary.
type StatusResponse struct {
	Status  *license.StatusInfo `json:"status"`
	Summary string              `json:"summary"`
	Devices string              `json:"devices"`
}

// ResetDevicesResponse reports the device reset outcome.
type ResetDevicesResponse struct {
	Success        bool   `json:"success"`
	ResetRemaining int    `json:"reset_remaining"`
	Message        string `json:"message,omitempty"`
}

// Routes returns the chi router for the auth endpoints.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(45 * time.Second))

	r.Get("/status", h.GetStatus)
	r.Get("/projection", h.GetProjection)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/register", h.Register)
	r.Post("/reset-devices", h.ResetDevices)

	return r
}

// GetStatus handles GET /api/auth/status. Display only; the projection gate
// is GET /api/auth/projection.
func (h *AuthHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  h.manager.Status(),
		Summary: h.manager.StatusSummary(),
		Devices: h.manager.DeviceBindingSummary(),
	}
	render.JSON(w, r, resp)
}

// GetProjection handles GET /api/auth/projection, the feature gate.
func (h *AuthHandler) GetProjection(w http.ResponseWriter, r *http.Request) {
	allowed := h.manager.CanUseProjection()
	resp := ProjectionResponse{Allowed: allowed}
	if !allowed {
		resp.Message = h.manager.StatusSummary()
	}
	render.JSON(w, r, resp)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())

	if !h.loginLimiter.Allow() {
		render.Render(w, r, apierrors.ErrRateLimited)
		return
	}

	data := &LoginRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "VALIDATION_FAILED", "Invalid login request", err.Error()))
		return
	}

	status, err := h.manager.Login(ctx, data.Username, data.Password)
	if err != nil {
		h.renderAuthError(w, r, err)
		return
	}

	render.JSON(w, r, StatusResponse{
		Status:  status,
		Summary: h.manager.StatusSummary(),
		Devices: h.manager.DeviceBindingSummary(),
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())
	h.manager.Logout(ctx)
	render.JSON(w, r, map[string]bool{"success": true})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())

	if !h.loginLimiter.Allow() {
		render.Render(w, r, apierrors.ErrRateLimited)
		return
	}

	data := &RegisterRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "VALIDATION_FAILED", "Invalid registration request", err.Error()))
		return
	}

	result, err := h.manager.Register(ctx, data.Username, data.Password, data.Email)
	if err != nil {
		h.renderAuthError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}

// ResetDevices handles POST /api/auth/reset-devices.
func (h *AuthHandler) ResetDevices(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())

	if !h.loginLimiter.Allow() {
		render.Render(w, r, apierrors.ErrRateLimited)
		return
	}

	data := &ResetDevicesRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "VALIDATION_FAILED", "Invalid reset request", err.Error()))
		return
	}

	remaining, err := h.manager.ResetDevices(ctx, data.Password)
	if err != nil {
		h.renderAuthError(w, r, err)
		return
	}

	render.JSON(w, r, ResetDevicesResponse{
		Success:        true,
		ResetRemaining: remaining,
		Message:        "Devices reset. Other installations must sign in again.",
	})
}

func (h *AuthHandler) renderAuthError(w http.ResponseWriter, r *http.Request, err error) {
	authErr, ok := err.(*license.AuthError)
	if !ok {
		h.logger.Error("Unexpected auth error", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}

	switch authErr.Kind {
	case license.ErrKindNetwork:
		render.Render(w, r, apierrors.ErrServerUnreachable)
	case license.ErrKindNotAuthenticated:
		render.Render(w, r, apierrors.ErrNotSignedIn)
	default:
		render.Render(w, r, apierrors.ErrRejected(authErr.Message, authErr.Reason))
	}
}
