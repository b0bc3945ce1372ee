package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/blossom-account/internal/auth"
	"github.com/utafrali/blossom-account/internal/repository/memory"
	"github.com/utafrali/blossom-account/internal/service"
	"github.com/utafrali/blossom-account/pkg/health"
	"github.com/utafrali/blossom-account/pkg/httputil"
	"github.com/utafrali/blossom-account/pkg/middleware"
)

const testSecret = "handler-test-secret-key-0123456789abcdef"

type dispatched struct{ email, token string }

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []dispatched
}

func (d *recordingDispatcher) Dispatch(_ context.Context, email, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, dispatched{email, token})
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type testServer struct {
	handler    http.Handler
	store      *memory.Store
	tokens     *auth.TokenService
	dispatcher *recordingDispatcher
	health     *health.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, RouterConfig{})
}

// newTestServerWith builds a server over a memory store. Only the flags of
// extra are used; the remaining router settings are fixed.
func newTestServerWith(t *testing.T, extra RouterConfig) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:          testSecret,
		Algorithm:       "HS256",
		AccessTTL:       30 * time.Minute,
		VerificationTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	accounts := service.NewAccountService(store, store, hasher, tokens, dispatcher, logger)
	terms := service.NewTermsService(store, store, logger)

	healthHandler := health.NewHandler()
	reg := prometheus.NewRegistry()

	router := NewRouter(accounts, terms, healthHandler, logger, RouterConfig{
		ServiceName:       "account-test",
		APIPrefix:         "/auth",
		CORS:              middleware.DefaultCORSConfig(),
		TrustProxyHeaders: extra.TrustProxyHeaders,
		Registerer:        reg,
		Gatherer:          reg,
	})

	return &testServer{
		handler:    router,
		store:      store,
		tokens:     tokens,
		dispatcher: dispatcher,
		health:     healthHandler,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

func (s *testServer) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(t, req)
}

func (s *testServer) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testServer) register(t *testing.T, email, password string) {
	t.Helper()
	rec := s.postJSON(t, "/auth/register", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := s.postJSON(t, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decode(t, rec, &tok)
	require.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	decode(t, rec, &body)
	return body
}

// --- Root and health ---

func TestRoot(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Welcome to the Blossom Foundation Retreat Platform API"}`, rec.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, s.get(t, "/health/live", "").Code)

	s.health.RegisterCritical("postgres", func(context.Context) error { return errors.New("down") })
	assert.Equal(t, http.StatusServiceUnavailable, s.get(t, "/health/ready", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.get(t, "/", "")

	rec := s.get(t, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	s := newTestServer(t)

	rec := s.postJSON(t, "/auth/register",
		`{"email":"test@example.com","password":"strongpassword123","first_name":"Ada","last_name":"Lovelace"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "test@example.com", body["email"])
	assert.Equal(t, false, body["is_verified"])
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, "Ada", body["first_name"])
	assert.NotContains(t, body, "password_hash")
	assert.NotContains(t, body, "is_superuser")
	assert.Equal(t, 1, s.dispatcher.count())
}

func TestRegister_Duplicate(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")

	rec := s.postJSON(t, "/auth/register", `{"email":"test@example.com","password":"anotherpassword"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", errorBody(t, rec).Detail)
	assert.Equal(t, 1, s.store.UserCount())
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
		wantCode  string
	}{
		{"bad email", `{"email":"not-an-email","password":"strongpassword123"}`, "email", "VALIDATION_ERROR"},
		{"missing password", `{"email":"a@example.com"}`, "password", "VALIDATION_ERROR"},
		{"email too long", `{"email":"` + longEmail() + `","password":"strongpassword123"}`, "email", "VALIDATION_ERROR"},
		{"malformed json", `{"email":`, "", "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.postJSON(t, "/auth/register", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := errorBody(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantField != "" {
				assert.Contains(t, body.Fields, tt.wantField)
			}
			assert.Zero(t, s.store.UserCount())
		})
	}
}

// longEmail is a syntactically valid 388-character address.
func longEmail() string {
	label := strings.Repeat("d", 63)
	return strings.Repeat("l", 64) + "@" + strings.Repeat(label+".", 5) + "com"
}

func TestRegister_ShortPasswordAccepted(t *testing.T) {
	s := newTestServer(t)

	s.register(t, "short@example.com", "pass")
	token := s.login(t, "short@example.com", "pass")

	rec := s.get(t, "/auth/me", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLogin_EmailTooLong(t *testing.T) {
	s := newTestServer(t)

	jsonRec := s.postJSON(t, "/auth/login", `{"email":"`+longEmail()+`","password":"x"}`)
	formRec := s.postForm(t, "/auth/token", url.Values{"username": {longEmail()}, "password": {"x"}})

	assert.Equal(t, http.StatusBadRequest, jsonRec.Code)
	assert.Contains(t, errorBody(t, jsonRec).Fields, "email")
	assert.Equal(t, http.StatusBadRequest, formRec.Code)
	assert.Contains(t, errorBody(t, formRec).Fields, "username")
}

// --- Login ---

func TestLogin_JSONAndForm(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")

	jsonToken := s.login(t, "test@example.com", "strongpassword123")

	rec := s.postForm(t, "/auth/token", url.Values{
		"username": {"test@example.com"},
		"password": {"strongpassword123"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var formToken map[string]string
	decode(t, rec, &formToken)
	assert.Equal(t, "bearer", formToken["token_type"])

	for _, tok := range []string{jsonToken, formToken["access_token"]} {
		subject, err := s.tokens.Validate(tok)
		require.NoError(t, err)
		assert.Equal(t, "test@example.com", subject)
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")

	wrongPassword := s.postJSON(t, "/auth/login", `{"email":"test@example.com","password":"wrongpassword"}`)
	unknownEmail := s.postJSON(t, "/auth/login", `{"email":"nobody@example.com","password":"wrongpassword"}`)

	for _, rec := range []*httptest.ResponseRecorder{wrongPassword, unknownEmail} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		body := errorBody(t, rec)
		assert.Equal(t, "Incorrect email or password", body.Detail)
		assert.Equal(t, service.CodeInvalidCredentials, body.Code)
	}
}

func TestToken_FailureWording(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")

	rec := s.postForm(t, "/auth/token", url.Values{
		"username": {"test@example.com"},
		"password": {"wrongpassword"},
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Incorrect username or password", errorBody(t, rec).Detail)
}

func TestLogin_ValidationIsShared(t *testing.T) {
	s := newTestServer(t)

	jsonRec := s.postJSON(t, "/auth/login", `{"email":"not-an-email","password":"x"}`)
	formRec := s.postForm(t, "/auth/token", url.Values{"username": {"not-an-email"}, "password": {"x"}})

	assert.Equal(t, http.StatusBadRequest, jsonRec.Code)
	assert.Equal(t, http.StatusBadRequest, formRec.Code)
	assert.Contains(t, errorBody(t, jsonRec).Fields, "email")
	assert.Contains(t, errorBody(t, formRec).Fields, "username")
}

// --- Me ---

func TestMe(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")
	token := s.login(t, "test@example.com", "strongpassword123")

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"tampered token", "Bearer " + token + "x", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := s.do(t, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				assert.Equal(t, "Could not validate credentials", errorBody(t, rec).Detail)
			}
		})
	}
}

func TestMe_SubjectGone(t *testing.T) {
	s := newTestServer(t)
	token, err := s.tokens.IssueAccessToken("ghost@example.com")
	require.NoError(t, err)

	rec := s.get(t, "/auth/me", token)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", errorBody(t, rec).Detail)
}

func TestMe_ExpiredToken(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")
	token, err := s.tokens.Issue("test@example.com", 0)
	require.NoError(t, err)

	rec := s.get(t, "/auth/me", token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Verify email ---

func TestVerifyEmail(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")
	token := s.dispatcher.sent[0].token

	rec := s.do(t, httptest.NewRequest(http.MethodPost, "/auth/verify-email?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Email verified successfully"}`, rec.Body.String())

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/auth/verify-email?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Email already verified"}`, rec.Body.String())
}

func TestVerifyEmail_Failures(t *testing.T) {
	s := newTestServer(t)
	ghost, err := s.tokens.IssueVerificationToken("ghost@example.com")
	require.NoError(t, err)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantDetail string
	}{
		{"missing token", "", http.StatusBadRequest, "Invalid or expired token"},
		{"garbage token", "?token=not-a-jwt", http.StatusBadRequest, "Invalid or expired token"},
		{"unknown subject", "?token=" + ghost, http.StatusNotFound, "User not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, httptest.NewRequest(http.MethodPost, "/auth/verify-email"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantDetail, errorBody(t, rec).Detail)
		})
	}
}

// TestEndToEnd walks register, login, me, verify, login, me.
func TestEndToEnd(t *testing.T) {
	s := newTestServer(t)

	rec := s.postJSON(t, "/auth/register", `{"email":"test@example.com","password":"strongpassword123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var registered map[string]any
	decode(t, rec, &registered)
	assert.Equal(t, false, registered["is_verified"])

	token := s.login(t, "test@example.com", "strongpassword123")

	rec = s.get(t, "/auth/me", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	decode(t, rec, &me)
	assert.Equal(t, "test@example.com", me["email"])
	assert.Equal(t, false, me["is_verified"])

	verifyToken, err := s.tokens.Issue("test@example.com", time.Hour)
	require.NoError(t, err)
	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/auth/verify-email?token="+verifyToken, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Email verified successfully"}`, rec.Body.String())

	token = s.login(t, "test@example.com", "strongpassword123")
	rec = s.get(t, "/auth/me", token)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &me)
	assert.Equal(t, true, me["is_verified"])
}

// --- Terms ---

func TestTermsActive(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "/auth/terms/active", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No active terms version", errorBody(t, rec).Detail)

	s.store.PublishTerms("2024-01", "Be kind.", true)

	rec = s.get(t, "/auth/terms/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "2024-01", body["version_string"])
	assert.Equal(t, "Be kind.", body["content"])
}

func TestTermsConsent(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")
	token := s.login(t, "test@example.com", "strongpassword123")
	version := s.store.PublishTerms("2024-01", "Be kind.", true)

	req := httptest.NewRequest(http.MethodPost, "/auth/terms/consent",
		strings.NewReader(`{"terms_version_id":`+jsonInt(version.ID)+`}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "blossom-test/1.0")
	req.RemoteAddr = "203.0.113.9:51234"

	rec := s.do(t, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "203.0.113.9", body["ip_address"])
	assert.Equal(t, "blossom-test/1.0", body["user_agent"])

	consents := s.store.Consents()
	require.Len(t, consents, 1)
	require.NotNil(t, consents[0].ContentSnapshot)
	assert.Equal(t, "Be kind.", *consents[0].ContentSnapshot)
}

func TestTermsConsent_Failures(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")
	token := s.login(t, "test@example.com", "strongpassword123")

	tests := []struct {
		name       string
		token      string
		body       string
		wantStatus int
	}{
		{"no token", "", `{"terms_version_id":1}`, http.StatusUnauthorized},
		{"unknown version", token, `{"terms_version_id":999}`, http.StatusNotFound},
		{"missing version", token, `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/terms/consent", strings.NewReader(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}

			rec := s.do(t, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
	assert.Empty(t, s.store.Consents())
}

func TestTermsConsent_UserAgentCutOnRuneBoundary(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "test@example.com", "strongpassword123")
	token := s.login(t, "test@example.com", "strongpassword123")
	version := s.store.PublishTerms("2024-01", "Be kind.", true)

	req := httptest.NewRequest(http.MethodPost, "/auth/terms/consent",
		strings.NewReader(`{"terms_version_id":`+jsonInt(version.ID)+`}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", strings.Repeat("a", 511)+"é")

	rec := s.do(t, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	consents := s.store.Consents()
	require.Len(t, consents, 1)
	require.NotNil(t, consents[0].UserAgent)
	assert.Equal(t, strings.Repeat("a", 511), *consents[0].UserAgent)
	assert.True(t, utf8.ValidString(*consents[0].UserAgent))
}

func TestTermsConsent_TrustProxyHeaders(t *testing.T) {
	tests := []struct {
		name   string
		trust  bool
		wantIP string
	}{
		{"trusted", true, "198.51.100.23"},
		{"untrusted", false, "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServerWith(t, RouterConfig{TrustProxyHeaders: tt.trust})
			s.register(t, "test@example.com", "strongpassword123")
			token := s.login(t, "test@example.com", "strongpassword123")
			version := s.store.PublishTerms("2024-01", "Be kind.", true)

			req := httptest.NewRequest(http.MethodPost, "/auth/terms/consent",
				strings.NewReader(`{"terms_version_id":`+jsonInt(version.ID)+`}`))
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("X-Forwarded-For", "198.51.100.23")
			req.RemoteAddr = "10.0.0.2:40000"

			rec := s.do(t, req)

			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			consents := s.store.Consents()
			require.Len(t, consents, 1)
			require.NotNil(t, consents[0].IPAddress)
			assert.Equal(t, tt.wantIP, *consents[0].IPAddress)
		})
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"two-byte rune at limit", "ab" + "é", 3, "ab"},
		{"three-byte rune at limit", "a" + "€", 3, "a"},
		{"invalid input", "a\xffb", 10, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateUTF8(tt.in, tt.n))
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", clientIP(req))

	req.RemoteAddr = "198.51.100.7"
	assert.Equal(t, "198.51.100.7", clientIP(req))
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
