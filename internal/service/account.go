package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/blossom-account/internal/auth"
	"github.com/utafrali/blossom-account/internal/domain"
	"github.com/utafrali/blossom-account/internal/repository"
	apperrors "github.com/utafrali/blossom-account/pkg/errors"
	"github.com/utafrali/blossom-account/pkg/logger"
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	VerifyDummy(plaintext string) bool
}

// TokenService issues and validates bearer tokens whose subject is an email.
type TokenService interface {
	IssueAccessToken(subject string) (string, error)
	IssueVerificationToken(subject string) (string, error)
	Validate(token string) (string, error)
}

// VerificationDispatcher hands a verification token to the notifier without
// blocking or reporting failure.
type VerificationDispatcher interface {
	Dispatch(ctx context.Context, email, token string)
}

// AccountService implements registration, login, session lookup and email
// verification.
type AccountService struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	hasher   PasswordHasher
	tokens   TokenService
	notifier VerificationDispatcher
	logger   *slog.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	hasher PasswordHasher,
	tokens TokenService,
	notifier VerificationDispatcher,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:    users,
		profiles: profiles,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput holds credentials for a login attempt. Form selects the
// form-login wording of the failure message; behaviour is otherwise the same.
type LoginInput struct {
	Email    string
	Password string
	Form     bool
}

func (s *AccountService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

// Register creates an unverified account, with a profile when a name was
// given, and dispatches a verification email. Notification failures never
// fail the registration.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.PublicUser, error) {
	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperrors.InvalidInput("password must be at most 72 bytes")
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{Email: in.Email, PasswordHash: digest}
	profile := domain.NewUserProfile(in.FirstName, in.LastName)

	if err := s.users.Create(ctx, user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			registrationsTotal.WithLabelValues("duplicate").Inc()
			return nil, DuplicateEmail()
		}
		registrationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create user: %w", err)
	}
	registrationsTotal.WithLabelValues("created").Inc()

	s.log(ctx).InfoContext(ctx, "user registered",
		slog.Int64("user_id", user.ID),
		logger.Email("email", user.Email),
	)

	token, err := s.tokens.IssueVerificationToken(user.Email)
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "issue verification token",
			logger.Email("email", user.Email),
			slog.String("error", err.Error()),
		)
	} else {
		s.notifier.Dispatch(ctx, user.Email, token)
	}

	pub := user.Public(profile)
	return &pub, nil
}

// Login checks credentials and issues a session token. An unknown email and
// a wrong password produce the same error after the same amount of hashing.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*domain.AccessToken, error) {
	message := MsgInvalidEmailCredentials
	if in.Form {
		message = MsgInvalidFormCredentials
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.hasher.VerifyDummy(in.Password)
			loginsTotal.WithLabelValues("invalid").Inc()
			return nil, InvalidCredentials(message)
		}
		loginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		loginsTotal.WithLabelValues("invalid").Inc()
		return nil, InvalidCredentials(message)
	}

	token, err := s.tokens.IssueAccessToken(user.Email)
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	loginsTotal.WithLabelValues("success").Inc()

	s.log(ctx).InfoContext(ctx, "user logged in", slog.Int64("user_id", user.ID))

	return &domain.AccessToken{AccessToken: token, TokenType: domain.TokenTypeBearer}, nil
}

// Authenticate validates a bearer token and returns its subject.
func (s *AccountService) Authenticate(token string) (string, error) {
	subject, err := s.tokens.Validate(token)
	if err != nil {
		return "", Unauthenticated()
	}
	return subject, nil
}

// WhoAmI resolves the account named by a bearer token.
func (s *AccountService) WhoAmI(ctx context.Context, token string) (*domain.PublicUser, error) {
	subject, err := s.Authenticate(token)
	if err != nil {
		return nil, err
	}
	return s.CurrentUser(ctx, subject)
}

// CurrentUser returns the public view of the account with the given email.
func (s *AccountService) CurrentUser(ctx context.Context, email string) (*domain.PublicUser, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, UserNotFound()
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	profile, err := s.profiles.GetByUserID(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get profile: %w", err)
		}
		profile = nil
	}

	pub := user.Public(profile)
	return &pub, nil
}

// VerifyEmail marks the token's subject verified. Repeating it reports
// VerifyAlreadyVerified rather than an error.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (domain.VerifyOutcome, error) {
	subject, err := s.tokens.Validate(token)
	if err != nil {
		verificationsTotal.WithLabelValues("invalid_token").Inc()
		return 0, InvalidToken()
	}

	changed, err := s.users.SetVerified(ctx, subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			verificationsTotal.WithLabelValues("not_found").Inc()
			return 0, UserNotFound()
		}
		verificationsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("set verified: %w", err)
	}

	if !changed {
		verificationsTotal.WithLabelValues("already_verified").Inc()
		return domain.VerifyAlreadyVerified, nil
	}

	verificationsTotal.WithLabelValues("verified").Inc()
	s.log(ctx).InfoContext(ctx, "email verified", logger.Email("email", subject))
	return domain.VerifyVerified, nil
}
