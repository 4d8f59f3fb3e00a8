package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-intel/internal/api"
)

var (
	servePort    int
	serveTimeout time.Duration
)

const shutdownGrace = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assessment HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		// Extraction is optional for the API; without a key only payload
		// scoring endpoints work.
		env, err := initEnv(ctx, envOptions{
			Extract:   cfg.Anthropic.Key != "",
			CRM:       true,
			InlineCRM: true,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Extractor == nil {
			zap.L().Warn("anthropic key not set, document extraction disabled")
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(env.Service, api.Options{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				RequestTimeout: serveTimeout,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("extraction", env.Extractor != nil),
			zap.Bool("crm_writeback", env.CRM != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 2*time.Minute, "per-request timeout, 0 to disable")
	rootCmd.AddCommand(serveCmd)
}
