package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/blossom-account/pkg/errors"
)

// remoteError covers the two error shapes this service talks to: its own
// {"detail","code"} body and the email API's {"name","message"} body.
type remoteError struct {
	Detail  string `json:"detail"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e remoteError) text() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}

func (e remoteError) code() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Name
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// translates it into an error. 429 and 503 map to ErrServiceUnavail, other
// 4xx keep their status as an AppError, 5xx become plain errors.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var remote remoteError
	if json.Unmarshal(body, &remote) != nil || remote.text() == "" {
		return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(body))
	}

	message := fmt.Sprintf("%s: %s", serviceName, remote.text())
	code := remote.code()
	if code == "" {
		code = http.StatusText(resp.StatusCode)
	}

	switch status := resp.StatusCode; {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return apperrors.New(status, code, message, apperrors.ErrServiceUnavail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.New(status, code, message, apperrors.ErrUnauthorized)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, remote.text())
	default:
		return apperrors.New(status, code, message, apperrors.ErrInvalidInput)
	}
}
