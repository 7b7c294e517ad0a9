package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/connecteur-digital/chatwidget/internal/api"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Serve the chat API and event stream for the website widget",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := appCfg
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		closeLog, err := initLogging(cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := buildStack(ctx, cfg)
		if err != nil {
			logx.Error().Err(err).Msg("failed to build conversation stack")
			return err
		}
		defer st.close()

		manager := st.manager(cfg)
		defer manager.Shutdown()

		go func() {
			if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logx.Error().Err(err).Msg("conversation sweeper stopped")
			}
		}()

		srv := api.NewServer(manager, st.leads, cfg.HTTP).HTTPServer()
		serveErr := make(chan error, 1)
		go func() {
			logx.Info().Str("addr", srv.Addr).Str("env", cfg.Environment.String()).Msg("server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			if err != nil {
				logx.Error().Err(err).Msg("server failed")
				return err
			}
		case <-ctx.Done():
		}
		stop()

		logx.Info().Msg("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logx.Error().Err(err).Msg("server forced to shutdown")
			return err
		}
		logx.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address, overrides HTTP_ADDR")
}
