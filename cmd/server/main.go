// recordgate is a governance layer in front of a record store: allow-listed
// queries, registered actions, validated audit metadata, and a durable
// evidence trail. main wires the dependencies and keeps the server lifecycle
// small; business logic lives in the internal services.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"recordgate/internal/action"
	"recordgate/internal/auditmeta"
	"recordgate/internal/evidence"
	"recordgate/internal/platform/config"
	"recordgate/internal/platform/httpserver"
	"recordgate/internal/platform/logger"
	"recordgate/internal/platform/metrics"
	platformredis "recordgate/internal/platform/redis"
	"recordgate/internal/query"
	"recordgate/internal/record"
	"recordgate/internal/registry"
	httptransport "recordgate/internal/transport/http"
	"recordgate/pkg/platform/middleware/auth"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lists, err := registry.NewListRegistry(registry.DefaultLists()...)
	if err != nil {
		return err
	}
	actions, err := registry.NewActionRegistry(registry.DefaultActions()...)
	if err != nil {
		return err
	}

	var (
		store  record.Store
		caps   record.CapabilityChecker
		evPrim evidence.Store
		health httptransport.HealthChecker
	)
	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		pg := record.NewPostgresStore(pool)
		store, caps, health = pg, pg, pg

		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		evPrim = evidence.NewPostgresStore(db)

		log.Info("using postgres stores")
	} else {
		mem := record.NewMemoryStore()
		store, caps = mem, mem
		evPrim = evidence.NewMemoryStore()
		log.Warn("no postgres DSN configured, running on in-memory stores")
	}

	var sinks evidence.MultiSink
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		// The mirror is best-effort even at startup.
		log.Warn("redis evidence mirror unavailable", "error", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		sinks = append(sinks, evidence.NewRedisSink(redisClient.Client))
		log.Info("redis evidence mirror enabled")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := evidence.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Warn("kafka evidence sink degraded", "error", err)
		}
		if kafkaSink != nil {
			defer kafkaSink.Close()
			sinks = append(sinks, kafkaSink)
			log.Info("kafka evidence sink enabled", "topic", cfg.Kafka.Topic)
		}
	}

	writerOpts := []evidence.WriterOption{
		evidence.WithLogger(log),
		evidence.WithMetrics(m),
	}
	if len(sinks) > 0 {
		writerOpts = append(writerOpts, evidence.WithSecondary(sinks))
	}
	writer := evidence.NewWriter(evPrim, writerOpts...)

	validator := auditmeta.NewValidator(actions.JustificationRequiredSet())

	queries := query.New(lists, store, caps,
		query.WithLogger(log),
		query.WithMetrics(m),
		query.WithPageSizeCeiling(cfg.PageSizeCeiling),
	)
	actionSvc, err := action.New(actions, store, caps, validator, writer,
		action.WithLogger(log),
		action.WithMetrics(m),
		action.WithBulkRecordCeiling(cfg.BulkRecordCeiling),
	)
	if err != nil {
		return err
	}

	verifier := auth.NewVerifier([]byte(cfg.JWTSigningKey))
	handler := httptransport.New(queries, actionSvc, lists, actions, caps, evPrim, health, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, verifier, log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting recordgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
