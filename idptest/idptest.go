// Package idptest provides an in-process fake of the Firebase password sign-in
// and secure-token refresh endpoints for tests.
//
// The fake rotates refresh tokens on every refresh: a refresh token that has
// been used once is rejected with INVALID_REFRESH_TOKEN afterwards, which lets
// tests prove that callers always persist the latest one.
package idptest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

// Endpoint paths, matching the real services
const (
	SignInPath  = "/v1/accounts:signInWithPassword"
	RefreshPath = "/v1/token"
)

// Default test values
const (
	DefaultAPIKey    = "test-api-key"
	DefaultExpiresIn = 3600
	DefaultUserID    = "uid-1"
)

// Server is a fake identity provider
type Server struct {
	*httptest.Server

	APIKey     string
	Email      string
	Password   string
	UserID     string
	SigningKey []byte

	mu            sync.Mutex
	expiresIn     int64
	refreshTokens map[string]bool
	signInErr     string
	refreshErr    string
	gate          chan struct{}
	signInCalls   int
	refreshCalls  int
	refreshSeen   []string
	arrivals      chan string
}

// NewServer starts a fake provider that accepts exactly one email/password pair
func NewServer(email, password string) *Server {
	s := &Server{
		APIKey:        DefaultAPIKey,
		Email:         email,
		Password:      password,
		UserID:        DefaultUserID,
		SigningKey:    []byte("idptest-signing-key"),
		expiresIn:     DefaultExpiresIn,
		refreshTokens: make(map[string]bool),
		arrivals:      make(chan string, 64),
	}

	r := mux.NewRouter()
	r.Use(s.requireAPIKey)
	r.HandleFunc(SignInPath, s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc(RefreshPath, s.handleRefresh).Methods(http.MethodPost)
	s.Server = httptest.NewServer(r)
	return s
}

// SignInURL is the password exchange endpoint of this server
func (s *Server) SignInURL() string { return s.URL + SignInPath }

// RefreshURL is the refresh endpoint of this server
func (s *Server) RefreshURL() string { return s.URL + RefreshPath }

// SetExpiresIn sets the lifetime, in seconds, of tokens issued from now on
func (s *Server) SetExpiresIn(secs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresIn = secs
}

// FailSignIn makes every sign-in fail with msg. "" restores normal behaviour.
func (s *Server) FailSignIn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signInErr = msg
}

// FailRefresh makes every refresh fail with msg. "" restores normal behaviour.
func (s *Server) FailRefresh(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshErr = msg
}

// HoldRefresh makes refresh requests block after they arrive until release
// is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshArrivals delivers the refresh token of each refresh request as it
// arrives, before any hold or failure is applied.
func (s *Server) RefreshArrivals() <-chan string {
	return s.arrivals
}

// IssueRefreshToken mints a valid refresh token without a sign-in, for
// seeding persisted state
func (s *Server) IssueRefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newRefreshTokenLocked()
}

// Revoke invalidates a refresh token
func (s *Server) Revoke(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, refreshToken)
}

// SignInCalls returns how many sign-in requests were received
func (s *Server) SignInCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signInCalls
}

// RefreshCalls returns how many refresh requests were received
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// RefreshTokensSeen returns the refresh tokens presented, in order
func (s *Server) RefreshTokensSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refreshSeen...)
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey != "" && r.URL.Query().Get("key") != s.APIKey {
			writeError(w, http.StatusBadRequest, "API key not valid. Please pass a valid API key.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email             string `json:"email"`
		Password          string `json:"password"`
		ReturnSecureToken bool   `json:"returnSecureToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}

	s.mu.Lock()
	s.signInCalls++
	forced := s.signInErr
	s.mu.Unlock()

	switch {
	case forced != "":
		writeError(w, http.StatusBadRequest, forced)
		return
	case req.Password == "":
		writeError(w, http.StatusBadRequest, "MISSING_PASSWORD")
		return
	case req.Email != s.Email:
		writeError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
		return
	case req.Password != s.Password:
		writeError(w, http.StatusBadRequest, "INVALID_PASSWORD")
		return
	}

	idToken, refreshToken, expiresIn, err := s.issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":         "identitytoolkit#VerifyPasswordResponse",
		"localId":      s.UserID,
		"email":        s.Email,
		"registered":   true,
		"idToken":      idToken,
		"refreshToken": refreshToken,
		"expiresIn":    strconv.FormatInt(expiresIn, 10),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GrantType    string `json:"grant_type"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}

	s.mu.Lock()
	s.refreshCalls++
	s.refreshSeen = append(s.refreshSeen, req.RefreshToken)
	gate := s.gate
	s.mu.Unlock()

	select {
	case s.arrivals <- req.RefreshToken:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	forced := s.refreshErr
	valid := s.refreshTokens[req.RefreshToken]
	if valid && forced == "" {
		// rotation: a refresh token is good for one use
		delete(s.refreshTokens, req.RefreshToken)
	}
	s.mu.Unlock()

	switch {
	case forced != "":
		writeError(w, http.StatusBadRequest, forced)
		return
	case req.GrantType != "refresh_token":
		writeError(w, http.StatusBadRequest, "INVALID_GRANT_TYPE")
		return
	case req.RefreshToken == "":
		writeError(w, http.StatusBadRequest, "MISSING_REFRESH_TOKEN")
		return
	case !valid:
		writeError(w, http.StatusBadRequest, "INVALID_REFRESH_TOKEN")
		return
	}

	idToken, refreshToken, expiresIn, err := s.issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id_token":      idToken,
		"access_token":  idToken,
		"refresh_token": refreshToken,
		"expires_in":    strconv.FormatInt(expiresIn, 10),
		"token_type":    "Bearer",
		"user_id":       s.UserID,
	})
}

// issue mints a new ID token and a new refresh token
func (s *Server) issue() (idToken, refreshToken string, expiresIn int64, err error) {
	s.mu.Lock()
	expiresIn = s.expiresIn
	refreshToken = s.newRefreshTokenLocked()
	s.mu.Unlock()

	idToken, err = s.MintIDToken(time.Duration(expiresIn) * time.Second)
	return idToken, refreshToken, expiresIn, err
}

// MintIDToken signs an ID token for the configured user
func (s *Server) MintIDToken(lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            "https://securetoken.google.com/idptest",
		"aud":            "idptest",
		"sub":            s.UserID,
		"user_id":        s.UserID,
		"email":          s.Email,
		"email_verified": true,
		"auth_time":      now.Unix(),
		"iat":            now.Unix(),
		"exp":            now.Add(lifetime).Unix(),
		"jti":            randomHex(8),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

func (s *Server) newRefreshTokenLocked() string {
	token := "rt-" + randomHex(16)
	s.refreshTokens[token] = true
	return token
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"errors": []map[string]string{
				{"message": msg, "domain": "global", "reason": "invalid"},
			},
		},
	})
}
