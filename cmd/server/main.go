package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jrsteele09/go-login-service/cachescope"
	"github.com/jrsteele09/go-login-service/cachestore"
	"github.com/jrsteele09/go-login-service/events"
	"github.com/jrsteele09/go-login-service/identity/azuread"
	"github.com/jrsteele09/go-login-service/internal/config"
	"github.com/jrsteele09/go-login-service/internal/logging"
	"github.com/jrsteele09/go-login-service/internal/metrics"
	"github.com/jrsteele09/go-login-service/lifecycle"
	"github.com/jrsteele09/go-login-service/refresh"
	"github.com/jrsteele09/go-login-service/server"
	"github.com/jrsteele09/go-login-service/sessions"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	c := config.New()
	level := c.GetLogLevel()
	if c.GetDebugAuth() {
		level = "debug"
	}
	logger := logging.New(level, c.GetEnv())

	if err := run(c, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}

func run(c config.Config, logger zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if err := config.Validate(c); err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", c.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	defer db.Close()
	if err := sessions.RunMigrations(ctx, db); err != nil {
		return err
	}
	repo := sessions.NewPostgresRepo(db, c.GetResourceBaseURI())

	client, err := azuread.New(ctx, c,
		azuread.WithLogger(logging.Component(logger, "identity")),
		azuread.WithDebug(c.GetDebugAuth()),
	)
	if err != nil {
		return err
	}

	m := metrics.New()
	publisher := newPublisher(c, logger)
	defer publisher.Close()

	managerOpts := []lifecycle.Option{
		lifecycle.WithPublisher(publisher),
		lifecycle.WithMetrics(m),
		lifecycle.WithLogger(logging.Component(logger, "lifecycle")),
		lifecycle.WithDebugAuth(c.GetDebugAuth()),
	}

	var credentials *lifecycle.Credentials
	if c.GetRefreshTokensEnabled() {
		store, err := cachestore.NewRedisStore(ctx, c.GetRedisEndpoint(), c.GetRedisKeyPrefix())
		if err != nil {
			return err
		}
		defer store.Close()

		scopeOpts := []cachescope.ControllerOption{
			cachescope.WithLogger(logging.Component(logger, "cachescope")),
			cachescope.WithMetrics(m),
		}
		if key := c.GetCacheEncryptionKey(); key != "" {
			sealer, err := cachestore.NewSealer(key)
			if err != nil {
				return err
			}
			scopeOpts = append(scopeOpts, cachescope.WithSealer(sealer))
		}

		credentials = lifecycle.NewCredentials(client, cachescope.New(store, scopeOpts...), c.GetScopes())
		scheduler := refresh.New(credentials, repo, c.GetRenewalOffset(),
			refresh.WithGraceInterval(c.GetRefreshGraceInterval()),
			refresh.WithRetry(c.GetRefreshRetryAttempts(), c.GetRefreshRetryBaseDelay()),
			refresh.WithLogger(logging.Component(logger, "refresh")),
			refresh.WithMetrics(m),
			refresh.WithTerminateHook(lifecycle.TerminationPublisher(publisher, logger)),
		)
		defer scheduler.Stop()

		managerOpts = append(managerOpts, lifecycle.WithBackgroundRefresh(scheduler, credentials, store))
	} else {
		credentials = lifecycle.NewCredentials(client, nil, c.GetScopes())
	}

	manager := lifecycle.New(credentials, repo, managerOpts...)

	// Recovery purges unknown blobs, so it must finish before the listener opens.
	stats, err := manager.Restore(ctx)
	if err != nil {
		return fmt.Errorf("manager.Restore: %w", err)
	}
	logger.Info().
		Int("scheduled", stats.Scheduled).
		Int("removed", stats.Removed).
		Int("skipped", stats.Skipped).
		Int("blobs_purged", stats.BlobsPurged).
		Msg("session recovery complete")

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, manager, m, logging.Component(logger, "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(httpServer, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpServer)
	})

	return g.Wait()
}

func newPublisher(c config.Config, logger zerolog.Logger) events.Publisher {
	brokers := c.GetKafkaBrokers()
	if len(brokers) == 0 {
		logger.Info().Msg("no kafka brokers configured, session events disabled")
		return events.Noop{}
	}
	return events.NewKafkaPublisher(brokers, c.GetKafkaTopic())
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
