package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/idrecon/internal/config"
	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/logging"
	"github.com/roach88/idrecon/internal/pgstore"
	"github.com/roach88/idrecon/internal/reconcile"
	"github.com/roach88/idrecon/internal/store"
)

// env is what a store-backed command runs against.
type env struct {
	cfg        *config.Config
	logger     zerolog.Logger
	store      contact.Store
	reconciler *reconcile.Reconciler

	closeLog func() error
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DSN != "" {
		cfg.Store.DSN = opts.DSN
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.Log.
func newLogger(cfg *config.Config) (zerolog.Logger, func() error) {
	return logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		NoColor: os.Getenv("NO_COLOR") != "",
	})
}

// openEnv loads config, opens the configured store and builds a reconciler.
func openEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return newEnv(cmd, cfg)
}

// newEnv opens the store named by cfg. Options are appended to the
// reconciler's defaults.
func newEnv(cmd *cobra.Command, cfg *config.Config, ropts ...reconcile.Option) (*env, error) {
	logger, closeLog := newLogger(cfg)

	st, err := openStore(commandContext(cmd), cfg.Store, logger)
	if err != nil {
		_ = closeLog()
		return nil, WrapExitError(ExitCommandError,
			fmt.Sprintf("failed to open %s store", cfg.Store.Driver), err)
	}

	ropts = append([]reconcile.Option{reconcile.WithLogger(logger)}, ropts...)
	return &env{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		reconciler: reconcile.New(st, ropts...),
		closeLog:   closeLog,
	}, nil
}

// Close releases the store and the log output.
func (e *env) Close() error {
	err := e.store.Close()
	if cerr := e.closeLog(); err == nil {
		err = cerr
	}
	return err
}

// openStore opens the backend named by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (contact.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := pgstore.Open(ctx, cfg.DSN,
			pgstore.WithMaxRetries(cfg.MaxRetries),
			pgstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite3, config.DriverSQLite:
		st, err := store.Open(cfg.DSN, store.WithDriver(cfg.Driver))
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
