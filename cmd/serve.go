package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dayuer/castbot/internal/logutil"
	"github.com/dayuer/castbot/internal/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server and reply workers",
	Long: `Start castbot in the foreground:
  - POST <webhook_path> accepts Neynar cast.created events
  - GET /health and GET /api/status report liveness and counters
  - SIGINT/SIGTERM drain queued replies before exit`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "listen address (overrides server.listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	logger, err := logutil.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := makeStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing stores", "error", err)
		}
	}()

	p, err := buildPipeline(cfg, st, logger)
	if err != nil {
		return err
	}

	// Workers get their own context so queued replies survive the signal.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	p.Start(workCtx)

	srv := server.New(p, server.Config{
		Listen:            cfg.Server.Listen,
		WebhookPath:       cfg.Server.WebhookPath,
		SignatureHeader:   cfg.Webhook.SignatureHeader,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		Gauges:            st.gauges,
		Logger:            logger,
	})

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("writing pid file", "error", err)
	}
	defer removePID()

	logger.Info("castbot starting",
		"version", Version,
		"listen", cfg.Server.Listen,
		"bot", cfg.Bot.Handle,
		"fid", cfg.Bot.FID,
		"store", cfg.Store.Backend,
	)

	// Start returns once ctx is cancelled and in-flight requests finished.
	if err = srv.Start(ctx); err != nil {
		logger.Error("server stopped", "error", err)
	} else {
		logger.Info("shutting down")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if drainErr := p.Shutdown(drainCtx); drainErr != nil {
		logger.Warn("queued replies abandoned", "error", drainErr)
		cancelWork()
		err = errors.Join(err, drainErr)
	}
	logger.Info("castbot stopped", "stats", p.Stats())
	return err
}
