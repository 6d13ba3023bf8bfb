package authsession_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/panyam/authsession"
	"github.com/panyam/authsession/idptest"
)

func newIDPProvider(srv *idptest.Server) *authsession.HTTPProvider {
	return authsession.NewHTTPProvider(srv.APIKey,
		authsession.WithSignInURL(srv.SignInURL()),
		authsession.WithRefreshURL(srv.RefreshURL()))
}

func TestHTTPProvider_SignIn_Success(t *testing.T) {
	srv := idptest.NewServer("service@example.com", "secret")
	defer srv.Close()

	resp, err := newIDPProvider(srv).SignInWithPassword(context.Background(), "service@example.com", "secret")
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if resp.IDToken == "" || resp.RefreshToken == "" {
		t.Errorf("missing tokens in %+v", resp)
	}
	if resp.ExpiresIn != time.Hour {
		t.Errorf("ExpiresIn = %v, want 1h", resp.ExpiresIn)
	}
}

func TestHTTPProvider_SignIn_RequestBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k1" {
			t.Errorf("expected key=k1, got %q", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		var req authsession.SignInRequest
		json.Unmarshal(body, &req)

		if req.Email != "service@example.com" || req.Password != "secret" || !req.ReturnSecureToken {
			t.Errorf("unexpected sign-in request %+v", req)
		}

		json.NewEncoder(w).Encode(authsession.SignInResponse{
			IDToken:      "A",
			RefreshToken: "R1",
			ExpiresIn:    "3600",
		})
	}))
	defer server.Close()

	p := authsession.NewHTTPProvider("k1", authsession.WithSignInURL(server.URL+"/signin"))
	resp, err := p.SignInWithPassword(context.Background(), "service@example.com", "secret")
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if resp.IDToken != "A" || resp.RefreshToken != "R1" {
		t.Errorf("got %+v", resp)
	}
}

func TestHTTPProvider_Refresh_Rotates(t *testing.T) {
	srv := idptest.NewServer("service@example.com", "secret")
	defer srv.Close()
	p := newIDPProvider(srv)

	r1 := srv.IssueRefreshToken()
	resp, err := p.RefreshToken(context.Background(), r1)
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if resp.RefreshToken == r1 {
		t.Error("refresh token was not rotated")
	}

	// the old one is spent
	if _, err := p.RefreshToken(context.Background(), r1); err == nil {
		t.Error("reusing a rotated refresh token should fail")
	}
	if _, err := p.RefreshToken(context.Background(), resp.RefreshToken); err != nil {
		t.Errorf("rotated refresh token rejected: %v", err)
	}
}

func TestHTTPProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		forced   string
		wantErr  error
		wantMsg  string
	}{
		{"wrong password", "service@example.com", "wrong", "", authsession.ErrInvalidCredentials, "INVALID_PASSWORD"},
		{"unknown email", "nobody@example.com", "secret", "", authsession.ErrInvalidCredentials, "EMAIL_NOT_FOUND"},
		{"rate limited", "service@example.com", "wrong", "TOO_MANY_ATTEMPTS_TRY_LATER : Access temporarily disabled", authsession.ErrRateLimited, "TOO_MANY_ATTEMPTS_TRY_LATER : Access temporarily disabled"},
		{"unknown message", "service@example.com", "secret", "OPERATION_NOT_ALLOWED", authsession.ErrProvider, "OPERATION_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := idptest.NewServer("service@example.com", "secret")
			defer srv.Close()
			srv.FailSignIn(tt.forced)

			m := authsession.NewManager(tt.email, newIDPProvider(srv), authsession.NewMemoryStore())
			err := m.Login(context.Background(), tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			var perr *authsession.ProviderError
			if !errors.As(err, &perr) || perr.Message != tt.wantMsg {
				t.Errorf("provider message = %v, want %q", perr, tt.wantMsg)
			}
		})
	}
}

func TestHTTPProvider_ErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := authsession.NewHTTPProvider("", authsession.WithSignInURL(server.URL))
	_, err := p.SignInWithPassword(context.Background(), "a@example.com", "pw")

	var perr *authsession.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if perr.StatusCode != http.StatusBadGateway || perr.Message != authsession.MsgLoginFailed {
		t.Errorf("got %+v", perr)
	}
}

func TestHTTPProvider_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"missing refresh token", `{"id_token":"B","expires_in":"3600"}`},
		{"bad expiry", `{"id_token":"B","refresh_token":"R2","expires_in":"soon"}`},
		{"negative expiry", `{"id_token":"B","refresh_token":"R2","expires_in":"-5"}`},
		{"expiry overflows duration", `{"id_token":"B","refresh_token":"R2","expires_in":"9300000000"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			p := authsession.NewHTTPProvider("", authsession.WithRefreshURL(server.URL))
			if _, err := p.RefreshToken(context.Background(), "R1"); err == nil {
				t.Error("RefreshToken() should fail on a malformed response")
			}
		})
	}
}

func TestHTTPProvider_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	m := authsession.NewManager("a@example.com",
		authsession.NewHTTPProvider("", authsession.WithSignInURL(url)),
		authsession.NewMemoryStore())

	err := m.Login(context.Background(), "pw")
	if !errors.Is(err, authsession.ErrProvider) {
		t.Errorf("Login() error = %v, want ErrProvider", err)
	}
	if got := authsession.ErrorKind(err); got != "provider_error" {
		t.Errorf("ErrorKind() = %q", got)
	}
}
