package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"identity-server/internal/domain"
	"identity-server/internal/metrics"
	"identity-server/internal/service"
	"identity-server/pkg/response"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type AuthHandler struct {
	authService *service.AuthService
	metrics     *metrics.Recorder
	devMode     bool
}

func NewAuthHandler(authService *service.AuthService, rec *metrics.Recorder, devMode bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		metrics:     rec,
		devMode:     devMode,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeError(w, err, h.devMode)
		return
	}

	response.Created(w, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.metrics.Login(metrics.LoginFailure)
		}
		writeError(w, err, h.devMode)
		return
	}

	h.metrics.Login(metrics.LoginSuccess)
	response.Success(w, loginResp)
}

// Token exchanges a refresh token for a fresh token pair.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokenResp, err := h.authService.Refresh(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			h.metrics.TokenRejected(metrics.TokenRefresh)
		}
		writeError(w, err, h.devMode)
		return
	}

	response.Success(w, tokenResp)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.Logout(r.Context(), &req); err != nil {
		writeError(w, err, h.devMode)
		return
	}

	response.Message(w, "Logged out successfully")
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), &req); err != nil {
		writeError(w, err, h.devMode)
		return
	}

	response.Message(w, "If the email belongs to an account, a reset link has been sent")
}

// ResetPassword accepts the reset token in the body or as a bearer token.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Token == "" {
		if token, ok := service.ParseBearer(r.Header.Get("Authorization")); ok {
			req.Token = token
		}
	}

	if err := h.authService.ResetPassword(r.Context(), &req); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			h.metrics.TokenRejected(metrics.TokenReset)
		}
		writeError(w, err, h.devMode)
		return
	}

	response.Message(w, "Password has been reset")
}
