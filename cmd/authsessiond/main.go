// Command authsessiond keeps a service account signed in to the identity
// provider and proxies data store requests with the current token attached.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/glebarez/sqlite"
	"google.golang.org/api/option"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/panyam/authsession"
	"github.com/panyam/authsession/internal/api"
	"github.com/panyam/authsession/internal/config"
	"github.com/panyam/authsession/stores/fs"
	"github.com/panyam/authsession/stores/gae"
	gormstore "github.com/panyam/authsession/stores/gorm"
)

const appName = "authsessiond"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var providerOpts []authsession.ProviderOption
	if cfg.SignInURL != "" {
		providerOpts = append(providerOpts, authsession.WithSignInURL(cfg.SignInURL))
	}
	if cfg.RefreshURL != "" {
		providerOpts = append(providerOpts, authsession.WithRefreshURL(cfg.RefreshURL))
	}
	provider := authsession.NewHTTPProvider(cfg.APIKey, providerOpts...)

	manager := authsession.NewManager(cfg.Email, provider, store,
		authsession.WithLogger(logger),
		authsession.WithRefreshTimeout(cfg.RefreshTimeout))
	defer manager.Close()

	manager.Subscribe(func(token string) {
		logger.Info("session changed", "authenticated", token != "")
	})
	manager.Restore(ctx)

	a, err := api.New(manager, cfg.DataStoreURL, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server.ListenAndServe: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}

	logger.Info("shutting down")
	return shutdown(server)
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

// openStore builds the configured session store and a function releasing it
func openStore(ctx context.Context, cfg *config.Config) (authsession.Store, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		return authsession.NewMemoryStore(), noop, nil

	case config.BackendSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.StorePath), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewStore(db, cfg.Email), closeDB, nil

	case config.BackendDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject, option.WithUserAgent(appName))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create datastore client: %w", err)
		}
		return gae.NewStore(client, cfg.DatastoreNamespace, cfg.Email), closeIgnoringError(client), nil

	default:
		var opts []fs.Option
		if cfg.EncryptionKey != nil {
			opts = append(opts, fs.WithEncryptionKey(cfg.EncryptionKey))
		}
		store, err := fs.NewFileStore(cfg.StorePath, appName, opts...)
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("using session file", "path", store.Path())
		return store, noop, nil
	}
}

func closeIgnoringError(c io.Closer) func() {
	return func() { c.Close() }
}
