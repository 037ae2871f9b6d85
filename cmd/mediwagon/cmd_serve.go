package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashahealth/mediwagon/internal/app"
	"github.com/ashahealth/mediwagon/internal/observability"
)

func newServeCommand(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser dashboard and its API",
		Long: `Serve the browser dashboard under /ui/ together with the auth, dashboard
session, records and reminder endpoints and /metrics.

Speech input uses the browser's recognition engine; the server only relays
recognition events to the dashboard session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if addr != "" {
				cfg.BindAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.BindAddr, func(ctx context.Context) (http.Handler, func() error, error) {
				built, err := app.Build(ctx, cfg)
				if err != nil {
					return nil, nil, err
				}
				built.StartBackground(ctx)
				return built.API.Router(), built.Cleanup, nil
			}, cfg.ShutdownTimeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from APP_BIND_ADDR)")
	return cmd
}

type buildFunc func(ctx context.Context) (http.Handler, func() error, error)

// serve runs the handler until ctx ends, then drains connections for at most
// shutdownTimeout.
func serve(ctx context.Context, addr string, build buildFunc, shutdownTimeout time.Duration) error {
	log := observability.Logger()

	handler, cleanup, err := build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cleanup == nil {
			return
		}
		if err := cleanup(); err != nil {
			log.Warn("cleanup failed", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
			return srv.Close()
		}
		return nil
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
