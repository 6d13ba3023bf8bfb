package authsession

import (
	"time"

	"golang.org/x/oauth2"
)

// Session is the (access token, refresh token, expiry) triple issued by the
// identity provider. Sessions are replaced wholesale, never patched.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// newSession derives ExpiresAt from the moment the tokens were issued.
func newSession(issuedAt time.Time, resp *TokenResponse) *Session {
	return &Session{
		AccessToken:  resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    issuedAt.Add(resp.ExpiresIn),
	}
}

// IsExpired returns true if the access token has expired at the given instant
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Remaining returns the whole seconds left before expiry, or zero once expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// HasRefreshToken returns true if a refresh token is available
func (s *Session) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

// OAuth2Token converts the session into a bearer token for golang.org/x/oauth2
// consumers. The refresh token is not included; only the Manager refreshes.
func (s *Session) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.ExpiresAt,
	}
}
