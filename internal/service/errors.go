package service

import (
	"net/http"

	apperrors "github.com/utafrali/blossom-account/pkg/errors"
)

// Client-facing messages.
const (
	MsgDuplicateEmail          = "Email already registered"
	MsgInvalidEmailCredentials = "Incorrect email or password"
	MsgInvalidFormCredentials  = "Incorrect username or password"
	MsgUnauthenticated         = "Could not validate credentials"
	MsgInvalidToken            = "Invalid or expired token"
	MsgUserNotFound            = "User not found"
	MsgTermsNotFound           = "Terms version not found"
)

// Stable error codes.
const (
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeNotFound           = "NOT_FOUND"
)

// DuplicateEmail is returned by Register for a taken email. It is a 400, not
// a 409, to match what clients already handle.
func DuplicateEmail() *apperrors.AppError {
	return apperrors.New(http.StatusBadRequest, CodeDuplicateEmail, MsgDuplicateEmail, apperrors.ErrAlreadyExists)
}

// InvalidCredentials is returned by Login for an unknown email and for a
// wrong password alike. message is one of the Msg*Credentials constants.
func InvalidCredentials(message string) *apperrors.AppError {
	return apperrors.New(http.StatusUnauthorized, CodeInvalidCredentials, message, apperrors.ErrUnauthorized)
}

// Unauthenticated is returned when a bearer token does not validate.
func Unauthenticated() *apperrors.AppError {
	return apperrors.New(http.StatusUnauthorized, CodeUnauthenticated, MsgUnauthenticated, apperrors.ErrUnauthorized)
}

// InvalidToken is returned by VerifyEmail for a token that does not validate.
func InvalidToken() *apperrors.AppError {
	return apperrors.New(http.StatusBadRequest, CodeInvalidToken, MsgInvalidToken, apperrors.ErrInvalidInput)
}

// UserNotFound is returned when a valid token names an account that no
// longer exists.
func UserNotFound() *apperrors.AppError {
	return apperrors.New(http.StatusNotFound, CodeNotFound, MsgUserNotFound, apperrors.ErrNotFound)
}
