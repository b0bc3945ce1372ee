package domain

import (
	"time"
)

// User is a stored account. Email is unique and case-preserved; it is the
// lookup key and the token subject.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	IsSuperuser  bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserProfile holds optional personal details, one per user.
type UserProfile struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

// NewUserProfile returns a profile for the given names, or nil when both are
// empty.
func NewUserProfile(firstName, lastName string) *UserProfile {
	if firstName == "" && lastName == "" {
		return nil
	}
	p := &UserProfile{}
	if firstName != "" {
		p.FirstName = &firstName
	}
	if lastName != "" {
		p.LastName = &lastName
	}
	return p
}

// PublicUser is the client-facing view of a User.
type PublicUser struct {
	ID         int64   `json:"id"`
	Email      string  `json:"email"`
	IsActive   bool    `json:"is_active"`
	IsVerified bool    `json:"is_verified"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
}

// Public builds the client view of u. profile may be nil.
func (u *User) Public(profile *UserProfile) PublicUser {
	pub := PublicUser{
		ID:         u.ID,
		Email:      u.Email,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
	}
	if profile != nil {
		pub.FirstName = profile.FirstName
		pub.LastName = profile.LastName
	}
	return pub
}

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// AccessToken is the login response.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// VerifyOutcome is the result of a successful email verification request.
type VerifyOutcome int

const (
	// VerifyVerified means the account moved from unverified to verified.
	VerifyVerified VerifyOutcome = iota + 1
	// VerifyAlreadyVerified means the account was verified before.
	VerifyAlreadyVerified
)

// Message returns the acknowledgement shown to the client.
func (o VerifyOutcome) Message() string {
	if o == VerifyAlreadyVerified {
		return "Email already verified"
	}
	return "Email verified successfully"
}
