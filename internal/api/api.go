// Package api exposes a session Manager over HTTP for authsessiond.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/panyam/authsession"
)

// LoginRequest is the body of POST /login
type LoginRequest struct {
	Password string `json:"password"`
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Authenticated bool       `json:"authenticated"`
	State         string     `json:"state"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Email         string     `json:"email"`
	UserID        string     `json:"user_id,omitempty"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// API serves login, logout, status and the authenticated data proxy
type API struct {
	manager *authsession.Manager
	logger  *slog.Logger
	proxy   http.Handler
}

// New creates the API. dataStoreURL may be empty, in which case /data is
// not routed.
func New(manager *authsession.Manager, dataStoreURL string, logger *slog.Logger) (*API, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{manager: manager, logger: logger}

	if dataStoreURL != "" {
		target, err := url.Parse(dataStoreURL)
		if err != nil || target.Host == "" {
			return nil, errors.New("invalid data store URL: " + dataStoreURL)
		}
		proxy := &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
			},
			Transport: manager.Transport(nil, target.Host),
		}
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("data store request failed", "path", r.URL.Path, "error", err)
			errorResponse(w, "bad_gateway", "data store unreachable", http.StatusBadGateway)
		}
		a.proxy = http.StripPrefix("/data", proxy)
	}
	return a, nil
}

// Handler returns the routed handler
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/login", a.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.HandleLogout).Methods(http.MethodPost)
	r.HandleFunc("/status", a.HandleStatus).Methods(http.MethodGet)

	if a.proxy != nil {
		data := r.PathPrefix("/data").Subrouter()
		data.Use(a.RequireAuthenticated)
		data.PathPrefix("/").Handler(a.proxy)
	}
	return r
}

// HandleLogin signs in with the password from the request body
func (a *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		errorResponse(w, "invalid_request", "password is required", http.StatusBadRequest)
		return
	}

	err := a.manager.Login(r.Context(), req.Password)
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	kind := authsession.ErrorKind(err)
	switch kind {
	case "invalid_credentials":
		errorResponse(w, kind, "invalid email or password", http.StatusUnauthorized)
	case "rate_limited":
		errorResponse(w, kind, "too many attempts, try again later", http.StatusTooManyRequests)
	case "superseded":
		errorResponse(w, kind, "login was superseded", http.StatusConflict)
	default:
		errorResponse(w, "provider_error", "identity provider unavailable", http.StatusBadGateway)
	}
}

// HandleLogout ends the session
func (a *API) HandleLogout(w http.ResponseWriter, r *http.Request) {
	a.logger.Info("logout requested", "remote", r.RemoteAddr)
	a.manager.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus reports the session state without revealing any token
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Authenticated: a.manager.IsAuthenticated(),
		State:         a.manager.State().String(),
		Email:         a.manager.Email(),
	}
	if s := a.manager.Session(); s != nil {
		expiresAt := s.ExpiresAt.UTC()
		resp.ExpiresAt = &expiresAt
	}
	if resp.Authenticated {
		if claims, err := a.manager.Claims(); err == nil {
			resp.UserID = claims.UserID
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(resp)
}

// RequireAuthenticated rejects mutating requests while logged out.
// Reads pass through so public data stays readable.
func (a *API) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !a.manager.IsAuthenticated() {
				w.Header().Set("WWW-Authenticate", `Bearer realm="authsession"`)
				errorResponse(w, "unauthorized", "login required", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func errorResponse(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}
