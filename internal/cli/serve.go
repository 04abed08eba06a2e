package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/idrecon/internal/metrics"
	"github.com/roach88/idrecon/internal/reconcile"
	"github.com/roach88/idrecon/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve exposes identify and contact management over HTTP and, unless
http.metrics is false, Prometheus metrics on /metrics.

The server shuts down gracefully on SIGINT or SIGTERM.

Examples:
  idrecon serve
  idrecon serve --addr :9000 --db /var/lib/idrecon/contacts.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			var (
				m     *metrics.Metrics
				reg   *prometheus.Registry
				ropts []reconcile.Option
			)
			if cfg.HTTP.Metrics {
				reg = prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				m = metrics.New(reg)
				ropts = append(ropts, reconcile.WithRecorder(m))
			}

			e, err := newEnv(cmd, cfg, ropts...)
			if err != nil {
				return err
			}
			defer e.Close()

			srvCfg := server.Config{
				Addr:            cfg.HTTP.Addr,
				ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
				Logger:          e.logger,
			}
			if m != nil {
				srvCfg.Metrics = m
				srvCfg.Gatherer = reg
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e.logger.Info().
				Str("driver", cfg.Store.Driver).
				Bool("metrics", cfg.HTTP.Metrics).
				Str("config", cfg.ConfigFile).
				Msg("starting idrecon")

			if err := server.New(e.reconciler, e.store, srvCfg).Run(ctx); err != nil {
				return WrapExitError(ExitFailure, "server failed", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")

	return cmd
}
