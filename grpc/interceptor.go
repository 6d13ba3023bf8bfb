package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"github.com/panyam/authsession"
)

// ClientConfig configures the client-side token attachment.
type ClientConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Targets lists the hosts that receive the token. Calls to any other
	// target go out without it. An empty list attaches to nothing.
	Targets []string
}

// NewClientConfig creates a client config for the given target hosts.
func NewClientConfig(targets ...string) *ClientConfig {
	return &ClientConfig{
		Config:  DefaultConfig(),
		Targets: targets,
	}
}

func (c *ClientConfig) ensureDefaults() *ClientConfig {
	if c == nil {
		c = &ClientConfig{}
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	return c
}

// attach adds the token to ctx when target is allow-listed
func (c *ClientConfig) attach(ctx context.Context, source authsession.TokenGetter, target string) context.Context {
	if source == nil || !authsession.HostMatches(targetHost(target), c.Targets...) {
		return ctx
	}
	token := source.Token()
	if token == "" {
		return ctx
	}
	return TokenToOutgoingContextWithConfig(ctx, token, c.Config)
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that sends
// the current token to allow-listed targets.
func UnaryClientInterceptor(source authsession.TokenGetter, config *ClientConfig) grpc.UnaryClientInterceptor {
	config = config.ensureDefaults()

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(config.attach(ctx, source, cc.Target()), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that
// sends the current token to allow-listed targets.
func StreamClientInterceptor(source authsession.TokenGetter, config *ClientConfig) grpc.StreamClientInterceptor {
	config = config.ensureDefaults()

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(config.attach(ctx, source, cc.Target()), desc, cc, method, opts...)
	}
}

// Credentials implements credentials.PerRPCCredentials with the session token.
// Use it with grpc.WithPerRPCCredentials when interceptors are not an option.
type Credentials struct {
	Source authsession.TokenGetter
	Config *ClientConfig

	// RequireTLS refuses to send the token over an insecure connection
	RequireTLS bool
}

var _ credentials.PerRPCCredentials = (*Credentials)(nil)

// GetRequestMetadata implements credentials.PerRPCCredentials
func (c *Credentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	config := c.Config.ensureDefaults()
	if c.Source == nil || len(uri) == 0 {
		return nil, nil
	}
	if !authsession.HostMatches(authsession.HostOf(uri[0]), config.Targets...) {
		return nil, nil
	}
	token := c.Source.Token()
	if token == "" {
		return nil, nil
	}
	return map[string]string{config.MetadataKey: config.formatValue(token)}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials
func (c *Credentials) RequireTransportSecurity() bool {
	return c.RequireTLS
}

// targetHost extracts the host from a gRPC target such as
// "dns:///db.example.com:443", "passthrough:///localhost:50051" or "host:port"
func targetHost(target string) string {
	if i := strings.Index(target, "://"); i >= 0 {
		rest := target[i+3:]
		// drop the authority
		if j := strings.Index(rest, "/"); j >= 0 {
			rest = rest[j+1:]
		}
		target = rest
	}
	return authsession.HostOf(target)
}

// InterceptorConfig configures the server-side auth interceptors.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// RequireAuth when true rejects requests without a token.
	// When false, requests proceed but TokenFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	// Validate, if set, checks the token. A non-nil error rejects the call.
	Validate func(ctx context.Context, token string) error
}

// DefaultInterceptorConfig returns a config that requires a token for all methods.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows requests without a token.
func OptionalAuthConfig() *InterceptorConfig {
	config := DefaultInterceptorConfig()
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c == nil {
		c = DefaultInterceptorConfig()
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	return c
}

// check enforces RequireAuth and Validate for method
func (c *InterceptorConfig) check(ctx context.Context, method string) error {
	token := TokenFromContextWithConfig(ctx, c.Config)

	if token == "" {
		if c.RequireAuth && !c.PublicMethods[method] {
			return status.Error(codes.Unauthenticated, "authentication required")
		}
		return nil
	}
	if c.Validate != nil {
		if err := c.Validate(ctx, token); err != nil {
			return status.Error(codes.Unauthenticated, "invalid token")
		}
	}
	return nil
}

// UnaryAuthInterceptor returns a gRPC unary server interceptor that checks
// the token in incoming metadata.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := config.check(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream server interceptor that checks
// the token in incoming metadata.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := config.check(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
