package authsession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default Firebase endpoints
const (
	DefaultSignInURL  = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"
	DefaultRefreshURL = "https://securetoken.googleapis.com/v1/token"
)

// TokenResponse is a successful exchange, normalised across both endpoints
type TokenResponse struct {
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// IdentityProvider exchanges credentials and refresh tokens for new tokens
type IdentityProvider interface {
	// SignInWithPassword exchanges an email/password pair for a session
	SignInWithPassword(ctx context.Context, email, password string) (*TokenResponse, error)

	// RefreshToken exchanges a refresh token for a new session. The response
	// may carry a rotated refresh token that replaces the old one.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// SignInRequest is the request body for the password exchange endpoint
type SignInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// SignInResponse is the response from the password exchange endpoint
type SignInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId,omitempty"`
	Email        string `json:"email,omitempty"`
}

// RefreshRequest is the request body for the refresh endpoint
type RefreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse is the response from the refresh endpoint
type RefreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	TokenType    string `json:"token_type,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// ErrorResponse is the provider's error body
type ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPProvider talks to the Firebase Identity Toolkit and Secure Token APIs
type HTTPProvider struct {
	apiKey     string
	signInURL  string
	refreshURL string
	httpClient *http.Client
}

// ProviderOption configures an HTTPProvider
type ProviderOption func(*HTTPProvider)

// WithSignInURL overrides the password exchange endpoint
func WithSignInURL(u string) ProviderOption {
	return func(p *HTTPProvider) {
		p.signInURL = u
	}
}

// WithRefreshURL overrides the refresh endpoint
func WithRefreshURL(u string) ProviderOption {
	return func(p *HTTPProvider) {
		p.refreshURL = u
	}
}

// WithProviderHTTPClient sets the HTTP client used for provider calls.
// It must not be a client that attaches the session token.
func WithProviderHTTPClient(client *http.Client) ProviderOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewHTTPProvider creates a provider for the given web API key
func NewHTTPProvider(apiKey string, opts ...ProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		apiKey:     apiKey,
		signInURL:  DefaultSignInURL,
		refreshURL: DefaultRefreshURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SignInWithPassword implements IdentityProvider
func (p *HTTPProvider) SignInWithPassword(ctx context.Context, email, password string) (*TokenResponse, error) {
	var resp SignInResponse
	err := p.post(ctx, p.signInURL, SignInRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return normalize(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
}

// RefreshToken implements IdentityProvider
func (p *HTTPProvider) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var resp RefreshResponse
	err := p.post(ctx, p.refreshURL, RefreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return normalize(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
}

// normalize validates a response; expiresIn is a string-encoded count of seconds
func normalize(idToken, refreshToken, expiresIn string) (*TokenResponse, error) {
	if idToken == "" || refreshToken == "" {
		return nil, &ProviderError{Message: "response missing tokens"}
	}
	secs, err := strconv.ParseInt(expiresIn, 10, 64)
	if err != nil || secs < 0 || secs > math.MaxInt64/int64(time.Second) {
		return nil, &ProviderError{Message: fmt.Sprintf("invalid expiresIn %q", expiresIn)}
	}
	return &TokenResponse{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresIn:    time.Duration(secs) * time.Second,
	}, nil
}

func (p *HTTPProvider) endpoint(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid provider URL: %w", err)
	}
	if p.apiKey != "" {
		q := u.Query()
		q.Set("key", p.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// post makes a JSON request to the provider and decodes a 200 into out
func (p *HTTPProvider) post(ctx context.Context, base string, body any, out any) error {
	endpoint, err := p.endpoint(base)
	if err != nil {
		return err
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to identity provider: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		msg := MsgLoginFailed
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return &ProviderError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from identity provider: %w", err)
	}
	return nil
}
