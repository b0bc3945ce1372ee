package domain

import "time"

// TermsVersion is a published revision of the terms and conditions.
type TermsVersion struct {
	ID            int64     `json:"id"`
	VersionString string    `json:"version_string"`
	Content       string    `json:"content"`
	IsActive      bool      `json:"is_active"`
	PublishedAt   time.Time `json:"published_at"`
}

// TermsConsent records that a user accepted a terms version.
type TermsConsent struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	TermsVersionID  int64     `json:"terms_version_id"`
	ContentSnapshot *string   `json:"-"`
	AcceptedAt      time.Time `json:"accepted_at"`
	IPAddress       *string   `json:"ip_address,omitempty"`
	UserAgent       *string   `json:"user_agent,omitempty"`
}
