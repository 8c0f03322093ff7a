package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dspace-go/dsfront/internal/app"
	"github.com/dspace-go/dsfront/internal/config"
	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/server"
	"github.com/dspace-go/dsfront/internal/webclient"
)

var (
	serveAddr      string
	serveAppConfig string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the change submitter and entity pages",
	Long: `Serve renders the pages and exposes the job API.

With --app-config the runtime configuration is fetched from a running UI
(its /assets/config.json) and merged over the file configuration.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: ui.host:ui.port)")
	serveCmd.Flags().StringVar(&serveAppConfig, "app-config", "", "URL of a config.json to extend the environment with")
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveAppConfig != "" {
		if env, err = extendFromURL(ctx, env, serveAppConfig); err != nil {
			return err
		}
	}

	a, err := app.NewApplication(env, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Start(); err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{ListenAddr: serveAddr, App: a, Logger: logger})
	if err != nil {
		return err
	}
	httpSrv := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: httpSrv.Addr})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Err(err))
	}
	return a.Shutdown(shutdownCtx)
}

func extendFromURL(ctx context.Context, env *config.Environment, url string) (*config.Environment, error) {
	wcTimeout, err := env.WebClientTimeout()
	if err != nil {
		return nil, err
	}
	wc, err := webclient.NewWebClient(webclient.Config{Client: webclient.ClientNetHTTP, Timeout: wcTimeout}, logger)
	if err != nil {
		return nil, err
	}
	defer wc.Close()

	raw, err := config.FetchAppConfig(ctx, wc, url)
	if err != nil {
		return nil, err
	}
	extended, err := config.ExtendEnvironmentWithAppConfig(*env, raw)
	if err != nil {
		return nil, err
	}
	if err := extended.Validate(); err != nil {
		return nil, err
	}
	logger.Info("extended environment", logging.Field{Key: "from", Value: url})
	return &extended, nil
}
