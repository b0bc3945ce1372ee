package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/blossom-account/pkg/errors"
	"github.com/utafrali/blossom-account/pkg/httputil"
	"github.com/utafrali/blossom-account/pkg/logger"
)

type contextKeyType string

const subjectKey contextKeyType = "subject"

// UnauthenticatedMessage is the detail returned for any rejected bearer token.
const UnauthenticatedMessage = "Could not validate credentials"

// SubjectValidator validates a bearer token and returns its subject claim.
type SubjectValidator func(token string) (string, error)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme match is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth rejects requests without a valid bearer token and stores the token
// subject in the request context.
func Auth(validate SubjectValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized(UnauthenticatedMessage), nil)
				return
			}

			subject, err := validate(token)
			if err != nil || subject == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized(UnauthenticatedMessage), nil)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			ctx = logger.WithSubject(ctx, subject)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(logger.Email("subject", subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the subject stored by Auth.
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey).(string); ok {
		return s
	}
	return ""
}
