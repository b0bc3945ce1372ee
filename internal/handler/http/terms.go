package http

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/utafrali/blossom-account/internal/service"
	"github.com/utafrali/blossom-account/pkg/httputil"
	"github.com/utafrali/blossom-account/pkg/middleware"
	"github.com/utafrali/blossom-account/pkg/validator"
)

// maxUserAgent bounds the stored User-Agent.
const maxUserAgent = 512

// TermsHandler handles the terms endpoints.
type TermsHandler struct {
	service *service.TermsService
	logger  *slog.Logger
}

// NewTermsHandler creates a new terms HTTP handler.
func NewTermsHandler(svc *service.TermsService, logger *slog.Logger) *TermsHandler {
	return &TermsHandler{service: svc, logger: logger}
}

// ConsentRequest is the JSON body for accepting a terms version.
type ConsentRequest struct {
	TermsVersionID int64 `json:"terms_version_id" validate:"required,gt=0"`
}

// Active handles GET /auth/terms/active
func (h *TermsHandler) Active(w http.ResponseWriter, r *http.Request) {
	version, err := h.service.Active(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, version)
}

// Consent handles POST /auth/terms/consent. Requires Auth middleware.
func (h *TermsHandler) Consent(w http.ResponseWriter, r *http.Request) {
	var req ConsentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	ua := truncateUTF8(r.UserAgent(), maxUserAgent)

	consent, err := h.service.RecordConsent(r.Context(), service.ConsentInput{
		Email:          middleware.SubjectFromContext(r.Context()),
		TermsVersionID: req.TermsVersionID,
		IPAddress:      clientIP(r),
		UserAgent:      ua,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, consent)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune. Invalid
// sequences already in s are replaced.
func truncateUTF8(s string, n int) string {
	if len(s) > n {
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	return strings.ToValidUTF8(s, "")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
