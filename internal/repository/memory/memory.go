// Package memory provides in-process repositories for tests and local runs
// without PostgreSQL.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/blossom-account/internal/domain"
	"github.com/utafrali/blossom-account/internal/repository"
	apperrors "github.com/utafrali/blossom-account/pkg/errors"
)

// Store implements the user, profile and terms repositories over maps.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	users    map[string]*domain.User
	profiles map[int64]*domain.UserProfile
	terms    []*domain.TermsVersion
	consents []*domain.TermsConsent
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*domain.User),
		profiles: make(map[int64]*domain.UserProfile),
	}
}

var (
	_ repository.UserRepository    = (*Store)(nil)
	_ repository.ProfileRepository = (*Store)(nil)
	_ repository.TermsRepository   = (*Store)(nil)
)

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Create stores user and profile under the store lock, so concurrent
// creates of one email yield exactly one success.
func (s *Store) Create(_ context.Context, u *domain.User, profile *domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Email]; ok {
		return repository.ErrDuplicateEmail
	}

	now := time.Now().UTC()
	u.ID = s.id()
	u.IsActive = true
	u.IsVerified = false
	u.CreatedAt, u.UpdatedAt = now, now

	stored := *u
	s.users[u.Email] = &stored

	if profile != nil {
		profile.ID = s.id()
		profile.UserID = u.ID
		p := *profile
		s.profiles[u.ID] = &p
	}
	return nil
}

// GetByEmail returns a copy of the stored user.
func (s *Store) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// SetVerified flips is_verified once.
func (s *Store) SetVerified(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if u.IsVerified {
		return false, nil
	}
	u.IsVerified = true
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

// UpdatePasswordHash replaces the stored digest.
func (s *Store) UpdatePasswordHash(_ context.Context, email, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// GetByUserID returns a copy of the user's profile.
func (s *Store) GetByUserID(_ context.Context, userID int64) (*domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// UserCount returns the number of stored users.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Publish stores a terms version. An active version deactivates the others.
func (s *Store) Publish(_ context.Context, v *domain.TermsVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.terms {
		if t.VersionString == v.VersionString {
			return repository.ErrDuplicateTermsVersion
		}
	}
	if v.IsActive {
		for _, t := range s.terms {
			t.IsActive = false
		}
	}

	v.ID = s.id()
	v.PublishedAt = time.Now().UTC()
	cp := *v
	s.terms = append(s.terms, &cp)
	return nil
}

// PublishTerms publishes a version and returns it with its ID set. It panics
// on a duplicate version string.
func (s *Store) PublishTerms(versionString, content string, active bool) *domain.TermsVersion {
	v := &domain.TermsVersion{VersionString: versionString, Content: content, IsActive: active}
	if err := s.Publish(context.Background(), v); err != nil {
		panic(err)
	}
	return v
}

// GetActive returns the most recently published active version.
func (s *Store) GetActive(_ context.Context) (*domain.TermsVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.terms) - 1; i >= 0; i-- {
		if s.terms[i].IsActive {
			cp := *s.terms[i]
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// GetVersionByID returns a terms version by ID.
func (s *Store) GetVersionByID(_ context.Context, id int64) (*domain.TermsVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.terms {
		if v.ID == id {
			cp := *v
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// CreateConsent stores a consent after checking both references exist.
func (s *Store) CreateConsent(_ context.Context, c *domain.TermsConsent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userFound := false
	for _, u := range s.users {
		if u.ID == c.UserID {
			userFound = true
			break
		}
	}
	versionFound := false
	for _, v := range s.terms {
		if v.ID == c.TermsVersionID {
			versionFound = true
			break
		}
	}
	if !userFound || !versionFound {
		return apperrors.ErrNotFound
	}

	c.ID = s.id()
	c.AcceptedAt = time.Now().UTC()
	cp := *c
	s.consents = append(s.consents, &cp)
	return nil
}

// Consents returns copies of all stored consents.
func (s *Store) Consents() []domain.TermsConsent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TermsConsent, 0, len(s.consents))
	for _, c := range s.consents {
		out = append(out, *c)
	}
	return out
}
