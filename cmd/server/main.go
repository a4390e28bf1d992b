package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/courtside/internal/config"
	"github.com/DoyleJ11/courtside/internal/httpapi"
	"github.com/DoyleJ11/courtside/internal/hub"
	"github.com/DoyleJ11/courtside/internal/logging"
	"github.com/DoyleJ11/courtside/internal/ws"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("warning: %v", err)
	}

	cmd := &cli.Command{
		Name:   "courtside",
		Usage:  "live shared scoreboards over websockets",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) (err error) {
	cfg := config.FromCommand(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() {
		if serr := logger.Sync(); serr != nil && !errors.Is(serr, syscall.EINVAL) && !errors.Is(serr, syscall.ENOTTY) {
			err = multierr.Append(err, serr)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, hub.WithLogger(logger))
	reaper := hub.NewReaper(h, cfg.SweepInterval, cfg.IdleThreshold)

	// Build the router *with* the hub injected
	wsHandler := ws.NewHandler(h, logger, ws.Options{
		SendBuffer:         cfg.WSSendBuffer,
		MessageRate:        cfg.WSMessageRate,
		MessageBurst:       cfg.WSMessageBurst,
		OriginPatterns:     cfg.AllowedOrigins,
		SurfaceCourtErrors: cfg.SurfaceCourtErrors,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, wsHandler, logger, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		// Websocket handlers hang off this context so they end on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reaper.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Shutdown()
		return err
	})

	return g.Wait()
}
