// Package grpc carries the session's access token over gRPC metadata.
//
// Client side, the interceptors and Credentials attach the current token to
// calls bound for allow-listed targets. Server side, TokenFromContext and the
// auth interceptors read it back.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Default metadata settings for the access token.
const (
	// DefaultMetadataKey is the default gRPC metadata key carrying the token
	DefaultMetadataKey = "authorization"

	// DefaultScheme prefixes the token in the metadata value
	DefaultScheme = "Bearer"
)

// Config holds the metadata key configuration for the token.
type Config struct {
	// MetadataKey is the gRPC metadata key for the token.
	// Defaults to "authorization".
	MetadataKey string

	// Scheme is written before the token, separated by a space.
	// Defaults to "Bearer". Set NoScheme to send the bare token.
	Scheme string

	// NoScheme sends and accepts the bare token
	NoScheme bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKey: DefaultMetadataKey,
		Scheme:      DefaultScheme,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKey
	}
	if c.Scheme == "" {
		c.Scheme = DefaultScheme
	}
}

// formatValue renders the metadata value for token
func (c *Config) formatValue(token string) string {
	if c.NoScheme {
		return token
	}
	return c.Scheme + " " + token
}

// parseValue strips the scheme, returning "" if it does not match
func (c *Config) parseValue(v string) string {
	if c.NoScheme {
		return v
	}
	prefix := c.Scheme + " "
	if len(v) <= len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return ""
	}
	return v[len(prefix):]
}

// TokenFromContext extracts the access token from incoming gRPC metadata.
// Returns empty string if none was sent.
func TokenFromContext(ctx context.Context) string {
	return TokenFromContextWithConfig(ctx, nil)
}

// TokenFromContextWithConfig extracts the access token using the specified config.
func TokenFromContextWithConfig(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKey); len(values) > 0 {
		return config.parseValue(values[0])
	}
	return ""
}

// TokenToOutgoingContext adds the token to outgoing gRPC context metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return TokenToOutgoingContextWithConfig(ctx, token, nil)
}

// TokenToOutgoingContextWithConfig adds the token with a custom key or scheme.
func TokenToOutgoingContextWithConfig(ctx context.Context, token string, config *Config) context.Context {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	return metadata.AppendToOutgoingContext(ctx, config.MetadataKey, config.formatValue(token))
}

// IsAuthenticated returns true if the incoming context carries a token.
func IsAuthenticated(ctx context.Context) bool {
	return TokenFromContext(ctx) != ""
}
