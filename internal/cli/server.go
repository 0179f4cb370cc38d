package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/logging"
	transport "quiz-attempt-service/internal/transport/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(serviceName, cfg.Log.Level)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret not configured")
	}
	handler := transport.NewHandler(d.service, d.hub, transport.NewAuthenticator(cfg.Auth.JWTSecret),
		transport.WithLogger(log),
		transport.WithMetrics(d.metrics, d.registry),
	)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", finalPort).Info("starting quiz attempt service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if d.publisher != nil {
		// Events from every instance reach this instance's live leaderboards.
		g.Go(func() error { return d.publisher.Forward(gctx, d.hub) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
