package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/blossom-account/internal/service"
	"github.com/utafrali/blossom-account/pkg/httputil"
	"github.com/utafrali/blossom-account/pkg/middleware"
	"github.com/utafrali/blossom-account/pkg/validator"
)

// AuthHandler handles HTTP requests for the account endpoints.
type AuthHandler struct {
	service *service.AccountService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for registration.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=320"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// LoginRequest is the JSON request body for /login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required"`
}

// TokenRequest is the form body for /token. username carries the email.
type TokenRequest struct {
	Username string `form:"username" validate:"required,email,max=320"`
	Password string `form:"password" validate:"required"`
}

// --- Handlers ---

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// Token handles POST /auth/token, the form-encoded login.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	err := validator.ParseFormAndValidate(r, &req, func(get func(string) string) {
		req.Username = get("username")
		req.Password = get("password")
	})
	if err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	h.login(w, r, service.LoginInput{Email: req.Username, Password: req.Password, Form: true})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	h.login(w, r, service.LoginInput{Email: req.Email, Password: req.Password})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, in service.LoginInput) {
	token, err := h.service.Login(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, token)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteError(w, r, service.Unauthenticated(), h.logger)
		return
	}

	user, err := h.service.WhoAmI(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// VerifyEmail handles POST /auth/verify-email?token=...
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteError(w, r, service.InvalidToken(), h.logger)
		return
	}

	outcome, err := h.service.VerifyEmail(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteMessage(w, outcome.Message())
}
