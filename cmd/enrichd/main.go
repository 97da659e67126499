// Command enrichd runs the enrichment HTTP API, the worker pool, and the
// lease sweeper.
//
//	enrichd -role=all      API, workers, and sweeper in one process (default)
//	enrichd -role=api      API only; tickets queue up until a worker runs
//	enrichd -role=worker   workers and sweeper only
//
// Badger holds an exclusive lock on its data directory, so roles that share
// one DATA_DIR must run in the same process. With DATABASE_URL set the
// PostgreSQL backend is used instead and roles may run separately.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/api"
	"github.com/xraph/enrich/config"
	"github.com/xraph/enrich/engine"
	"github.com/xraph/enrich/entity"
	"github.com/xraph/enrich/kv"
	"github.com/xraph/enrich/logging"
	"github.com/xraph/enrich/lookup/wikipedia"
	"github.com/xraph/enrich/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "enrichd:", err)
		os.Exit(1)
	}
}

func run() error {
	roleFlag := flag.String("role", string(RoleAll), "which components to run: all, api, or worker")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	role, err := ParseRole(*roleFlag)
	if err != nil {
		return err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, logging.Options{
		Level:  cfg.LogLevel,
		Format: logging.Format(cfg.LogFormat),
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kvs, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	e, err := enrich.New(
		enrich.WithStore(kvs),
		enrich.WithConfig(cfg.Engine()),
		enrich.WithLogger(logger),
	)
	if err != nil {
		_ = kvs.Close()
		return err
	}

	wiki := wikipedia.New(entity.NewRepository(kvs),
		wikipedia.WithEndpoint(cfg.WikipediaAPIURL),
		wikipedia.WithRateLimit(cfg.LookupRatePerSec),
		wikipedia.WithLogger(logger),
	)

	eng, err := engine.Build(e, wiki.Handler())
	if err != nil {
		_ = kvs.Close()
		return err
	}

	logger.Info("enrichd starting",
		slog.String("role", string(role)),
		slog.String("store", cfg.StoreLocation()),
		slog.Int("concurrency", cfg.WorkerConcurrency),
	)

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if role.ServesAPI() {
		srv = &http.Server{
			Addr:              cfg.Addr(),
			Handler:           api.New(eng, api.WithLogger(logger)).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("api listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	if role.RunsWorkers() {
		// The pool is stopped explicitly below so in-flight tickets get the
		// full shutdown timeout.
		if err := eng.Start(context.WithoutCancel(ctx)); err != nil {
			_ = eng.Stop(context.Background())
			return err
		}
		g.Go(eng.Wait)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("enrichd shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine().ShutdownTimeout)
		defer cancel()

		var errs []error
		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		if err := eng.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("engine stop: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("enrichd stopped with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("enrichd stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (kv.Store, error) {
	return store.Open(ctx, cfg.StoreLocation(),
		store.WithSyncWrites(cfg.SyncWrites),
		store.WithLogger(logger),
	)
}
