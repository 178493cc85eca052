package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/phrazzld/mediaq/internal/api"
	"github.com/phrazzld/mediaq/internal/queue"
	"github.com/phrazzld/mediaq/internal/service/auth"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and run scheduled dispatch and reclaim passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(cmd.Context(), c)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.cfg.Server.Port))
			if err != nil {
				_ = srv.app.close()
				return fmt.Errorf("failed to listen on port %d: %w", c.cfg.Server.Port, err)
			}
			return srv.run(cmd.Context(), ln)
		},
	}
}

// server is the long-running serve mode.
type server struct {
	c         *cli
	app       *application
	handler   http.Handler
	scheduler *queue.Scheduler
}

func newServer(ctx context.Context, c *cli) (*server, error) {
	if c.cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required to serve the admin API")
	}
	jwtService, err := auth.NewJWTService(c.cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app, err := newApplication(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	p, err := app.buildProducer(ctx)
	if err != nil {
		_ = app.close()
		return nil, err
	}

	dispatcher := app.dispatcher(p)
	reclaimer := app.reclaimer()
	handler := api.NewMediaJobHandler(dispatcher, reclaimer, app.healthChecker(), app.jobs, api.ReclaimDefaults{
		MaxAgeMinutes: c.cfg.Reclaimer.MaxAgeMinutes,
		Limit:         c.cfg.Reclaimer.Limit,
	}, c.logger)

	srv := &server{
		c:   c,
		app: app,
		handler: api.NewRouter(api.RouterDeps{
			MediaJobs:  handler,
			JWTService: jwtService,
			Logger:     c.logger,
		}),
	}

	if c.cfg.Schedule.Enabled {
		srv.scheduler, err = queue.NewScheduler(dispatcher, reclaimer, queue.SchedulerConfig{
			Dispatch:      c.cfg.Schedule.Dispatch,
			DispatchLimit: c.cfg.Dispatcher.DefaultLimit,
			Reclaim:       c.cfg.Schedule.Reclaim,
			ReclaimRequest: queue.ReclaimRequest{
				StaleAfter: minutes(c.cfg.Reclaimer.MaxAgeMinutes),
				Limit:      c.cfg.Reclaimer.Limit,
				Apply:      c.cfg.Schedule.ReclaimApply,
			},
		}, c.logger)
		if err != nil {
			_ = app.close()
			return nil, err
		}
	}
	return srv, nil
}

// run serves on ln until ctx is cancelled or the server fails, then shuts
// down the HTTP server and the scheduler within the configured timeout.
func (s *server) run(ctx context.Context, ln net.Listener) error {
	log := s.c.logger
	httpServer := &http.Server{Handler: s.handler}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if s.scheduler != nil {
		s.scheduler.Start()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case serveErr = <-errCh:
		log.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if serveErr != nil {
		errs = append(errs, fmt.Errorf("server failed: %w", serveErr))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
	}
	// Stop returns once scheduled passes have drained or been abandoned, so the
	// store is still open for their final writes.
	if s.scheduler != nil {
		if err := s.scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.app.close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release resources: %w", err))
	}

	log.Info("server shutdown completed")
	return errors.Join(errs...)
}
