package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that does not validate: bad
// signature, wrong algorithm, expired or without a subject.
var ErrInvalidToken = errors.New("invalid or expired token")

// DefaultIssuer is set as the iss claim when none is configured.
const DefaultIssuer = "blossom-account"

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret          string
	Algorithm       string // HS256, HS384 or HS512
	Issuer          string
	AccessTTL       time.Duration
	VerificationTTL time.Duration
}

// TokenService issues and validates HMAC-signed JWTs whose subject is the
// account email. It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret          []byte
	method          *jwt.SigningMethodHMAC
	issuer          string
	accessTTL       time.Duration
	verificationTTL time.Duration
	now             func() time.Time
}

// NewTokenService validates cfg and builds a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is empty")
	}

	var method *jwt.SigningMethodHMAC
	switch cfg.Algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported token algorithm %q", cfg.Algorithm)
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	return &TokenService{
		secret:          []byte(cfg.Secret),
		method:          method,
		issuer:          issuer,
		accessTTL:       cfg.AccessTTL,
		verificationTTL: cfg.VerificationTTL,
		now:             time.Now,
	}, nil
}

// Algorithm returns the JWT alg header value used for signing.
func (s *TokenService) Algorithm() string {
	return s.method.Alg()
}

// Issue signs a token for subject expiring ttl from now.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueAccessToken signs a session token.
func (s *TokenService) IssueAccessToken(subject string) (string, error) {
	return s.Issue(subject, s.accessTTL)
}

// IssueVerificationToken signs an email verification token.
func (s *TokenService) IssueVerificationToken(subject string) (string, error) {
	return s.Issue(subject, s.verificationTTL)
}

// Validate returns the subject of a valid token.
func (s *TokenService) Validate(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
