package authsession

import (
	"net/http"
	"strings"
)

// DefaultTokenParam is the query parameter the data store reads the token from
const DefaultTokenParam = "auth"

// TokenGetter is anything that can report the current access token
type TokenGetter interface {
	Token() string
}

// Placement selects where AuthTransport puts the token
type Placement int

const (
	// PlaceQuery adds the token as a query parameter (Realtime Database style)
	PlaceQuery Placement = iota
	// PlaceHeader sets "Authorization: Bearer <token>"
	PlaceHeader
)

// AuthTransport wraps an http.RoundTripper to attach the current token to
// requests bound for the application's data store. Requests to any other
// host, including the identity provider, pass through untouched.
type AuthTransport struct {
	Base      http.RoundTripper
	Source    TokenGetter
	Hosts     []string
	Placement Placement
	Param     string
}

// NewAuthTransport creates an AuthTransport that attaches the token as the
// "auth" query parameter for the given hosts
func NewAuthTransport(source TokenGetter, base http.RoundTripper, hosts ...string) *AuthTransport {
	return &AuthTransport{
		Base:   base,
		Source: source,
		Hosts:  hosts,
		Param:  DefaultTokenParam,
	}
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	token := ""
	if t.Source != nil {
		token = t.Source.Token()
	}
	if token == "" || !t.matches(req) {
		return base.RoundTrip(req)
	}

	// Clone the request to avoid mutating the original
	req2 := req.Clone(req.Context())
	switch t.Placement {
	case PlaceHeader:
		req2.Header.Set("Authorization", "Bearer "+token)
	default:
		param := t.Param
		if param == "" {
			param = DefaultTokenParam
		}
		q := req2.URL.Query()
		q.Set(param, token)
		req2.URL.RawQuery = q.Encode()
	}
	return base.RoundTrip(req2)
}

// matches compares hostnames exactly (case-insensitive, port ignored)
func (t *AuthTransport) matches(req *http.Request) bool {
	if req.URL == nil {
		return false
	}
	return HostMatches(req.URL.Hostname(), t.Hosts...)
}

// HostMatches reports whether hostname (no port, no brackets) is one of
// hosts. Entries in hosts may carry a scheme, port or path.
func HostMatches(hostname string, hosts ...string) bool {
	for _, h := range hosts {
		if strings.EqualFold(hostname, hostOnly(h)) {
			return true
		}
	}
	return false
}

// HostOf extracts the hostname from "host", "host:port" or a URL
func HostOf(h string) string {
	return hostOnly(h)
}

// hostOnly accepts "host", "host:port" or a full URL
func hostOnly(h string) string {
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, "@"); i >= 0 {
		h = h[i+1:]
	}
	if i := strings.LastIndex(h, ":"); i >= 0 && !strings.Contains(h[i:], "]") {
		h = h[:i]
	}
	return strings.Trim(h, "[]")
}
