// Package config loads the authsessiond settings from the environment.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND
const (
	BackendFile      = "file"
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendDatastore = "datastore"
)

const (
	apiKeyVar         = "AUTHSESSION_API_KEY"
	emailVar          = "AUTHSESSION_EMAIL"
	signInURLVar      = "AUTHSESSION_SIGNIN_URL"
	refreshURLVar     = "AUTHSESSION_REFRESH_URL"
	dataStoreURLVar   = "AUTHSESSION_DATASTORE_URL"
	storeBackendVar   = "STORE_BACKEND"
	storePathVar      = "STORE_PATH"
	storeKeyVar       = "STORE_ENCRYPTION_KEY"
	dsProjectVar      = "DATASTORE_PROJECT"
	dsNamespaceVar    = "DATASTORE_NAMESPACE"
	listenAddrVar     = "LISTEN_ADDR"
	logLevelVar       = "LOG_LEVEL"
	logFormatVar      = "LOG_FORMAT"
	refreshTimeoutVar = "REFRESH_TIMEOUT"
)

// Config holds everything the daemon needs to start
type Config struct {
	APIKey       string
	Email        string
	SignInURL    string // empty means the provider default
	RefreshURL   string
	DataStoreURL string

	StoreBackend  string
	StorePath     string
	EncryptionKey []byte

	DatastoreProject   string
	DatastoreNamespace string

	ListenAddr     string
	LogLevel       slog.Level
	LogFormat      string
	RefreshTimeout time.Duration
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	c := &Config{
		APIKey:             GetEnv(apiKeyVar, ""),
		Email:              GetEnv(emailVar, ""),
		SignInURL:          GetEnv(signInURLVar, ""),
		RefreshURL:         GetEnv(refreshURLVar, ""),
		DataStoreURL:       GetEnv(dataStoreURLVar, ""),
		StoreBackend:       strings.ToLower(GetEnv(storeBackendVar, BackendFile)),
		StorePath:          GetEnv(storePathVar, ""),
		DatastoreProject:   GetEnv(dsProjectVar, ""),
		DatastoreNamespace: GetEnv(dsNamespaceVar, ""),
		ListenAddr:         GetEnv(listenAddrVar, ":8080"),
		LogFormat:          strings.ToLower(GetEnv(logFormatVar, "text")),
	}

	var errs []error
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s is required", apiKeyVar))
	}
	if c.Email == "" {
		errs = append(errs, fmt.Errorf("%s is required", emailVar))
	}

	switch c.StoreBackend {
	case BackendFile, BackendMemory:
	case BackendSQLite:
		if c.StorePath == "" {
			errs = append(errs, fmt.Errorf("%s is required for the sqlite backend", storePathVar))
		}
	case BackendDatastore:
		if c.DatastoreProject == "" {
			errs = append(errs, fmt.Errorf("%s is required for the datastore backend", dsProjectVar))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unknown backend %q", storeBackendVar, c.StoreBackend))
	}

	if v := GetEnv(storeKeyVar, ""); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil || len(key) != 32 {
			errs = append(errs, fmt.Errorf("%s must be 64 hex characters", storeKeyVar))
		}
		c.EncryptionKey = key
	}

	if err := c.LogLevel.UnmarshalText([]byte(GetEnv(logLevelVar, "info"))); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", logLevelVar, err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("%s must be text or json", logFormatVar))
	}

	if v := GetEnv(refreshTimeoutVar, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s must be a non-negative duration", refreshTimeoutVar))
		}
		c.RefreshTimeout = d
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}

	var handler slog.Handler
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler).With(slog.String("app", "authsessiond"))
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
