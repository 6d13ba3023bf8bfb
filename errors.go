package authsession

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCredentials is returned by Login when the provider rejects the password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRateLimited is returned by Login when the provider reports too many attempts.
	ErrRateLimited = errors.New("too many attempts, try later")

	// ErrProvider is the catch-all for transport failures and unrecognised
	// provider errors.
	ErrProvider = errors.New("identity provider error")

	// ErrRefreshFailed marks a background refresh failure. It is logged, never
	// returned; its only visible effect is the session being cleared.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrSuperseded is returned by a Login whose result arrived after a logout
	// or a newer login. The result was discarded.
	ErrSuperseded = errors.New("superseded by a newer session operation")

	// ErrNotAuthenticated is returned by token sources when no session is installed.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Provider error messages, matched by prefix since the provider may append
// a human-readable suffix ("USER_DISABLED : The user account has been disabled").
const (
	MsgTooManyAttempts         = "TOO_MANY_ATTEMPTS_TRY_LATER"
	MsgInvalidPassword         = "INVALID_PASSWORD"
	MsgInvalidLoginCredentials = "INVALID_LOGIN_CREDENTIALS"
	MsgEmailNotFound           = "EMAIL_NOT_FOUND"
	MsgUserDisabled            = "USER_DISABLED"
	MsgMissingPassword         = "MISSING_PASSWORD"
	MsgLoginFailed             = "LOGIN_FAILED"
)

var invalidCredentialMessages = []string{
	MsgInvalidPassword,
	MsgInvalidLoginCredentials,
	MsgEmailNotFound,
	MsgUserDisabled,
	MsgMissingPassword,
}

// ProviderError is an error body returned by the identity provider
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("identity provider: %s", e.Message)
	}
	return fmt.Sprintf("identity provider: HTTP %d: %s", e.StatusCode, e.Message)
}

// classifyLoginError wraps err with one of ErrRateLimited,
// ErrInvalidCredentials or ErrProvider while keeping err in the chain.
func classifyLoginError(err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		if strings.HasPrefix(perr.Message, MsgTooManyAttempts) {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		for _, msg := range invalidCredentialMessages {
			if strings.HasPrefix(perr.Message, msg) {
				return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrProvider, err)
}

// ErrorKind returns a short machine-readable kind for a Login error, for
// display layers: "invalid_credentials", "rate_limited", "superseded",
// "provider_error", or "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	default:
		return "provider_error"
	}
}
