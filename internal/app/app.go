package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/fx"

	"mqtt-timescale/internal/config"
	"mqtt-timescale/internal/observability/metrics"
	"mqtt-timescale/internal/telemetry/application"
	telemetry "mqtt-timescale/internal/telemetry/domain"
	"mqtt-timescale/internal/telemetry/infrastructure/postgres"
	"mqtt-timescale/internal/telemetry/interfaces/httpapi"
	"mqtt-timescale/internal/telemetry/interfaces/kafka"
)

// New builds the ingest service for cfg.
func New(cfg config.Config, logger *log.Logger) *fx.App {
	return fx.New(Options(cfg, logger), fx.NopLogger)
}

// Options returns the dependency graph of the service.
func Options(cfg config.Config, logger *log.Logger) fx.Option {
	if logger == nil {
		logger = log.Default()
	}
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.Provide(
			provideDB,
			provideRepository,
			provideNode,
			provideIngester,
			provideHandler,
			provideRouter,
		),
		fx.Invoke(
			registerMetrics,
			startHTTP,
			startKafka,
		),
	)
}

func provideDB(lc fx.Lifecycle, cfg config.Config, logger *log.Logger) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := postgres.Open(ctx, cfg.ConnConfig())
	if err != nil {
		return nil, err
	}
	var once sync.Once
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			var closeErr error
			once.Do(func() {
				logger.Printf("ingest: closing store pool")
				closeErr = db.Close()
			})
			return closeErr
		},
	})
	return db, nil
}

func provideRepository(db *sql.DB, cfg config.Config) telemetry.RowWriter {
	return postgres.NewMeasurementRepository(db, postgres.WithTable(cfg.Database.Table))
}

func provideNode(cfg config.Config) (telemetry.NodeConfig, error) {
	return cfg.NodeConfig()
}

func provideIngester(node telemetry.NodeConfig, writer telemetry.RowWriter, logger *log.Logger) (*application.Ingester, error) {
	return application.NewIngester(node, writer, logger)
}

func provideHandler(ingester *application.Ingester, logger *log.Logger) (*httpapi.MessageHandler, error) {
	return httpapi.NewMessageHandler(ingester, logger)
}

func provideRouter(handler *httpapi.MessageHandler, db *sql.DB, cfg config.Config, logger *log.Logger) http.Handler {
	return httpapi.NewRouter(httpapi.RouterConfig{
		Handler:      handler,
		Pinger:       db,
		JWTSecret:    []byte(cfg.Auth.JWTSecret),
		IngestSecret: []byte(cfg.Auth.IngestHMACSecret),
		MaxSkew:      cfg.IngestMaxSkew(),
		Logger:       logger,
	})
}

func registerMetrics(db *sql.DB, logger *log.Logger) {
	metrics.Init(db, logger)
}

func startHTTP(lc fx.Lifecycle, cfg config.Config, router http.Handler, logger *log.Logger) {
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listener, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			go func() {
				logger.Printf("ingest: http listening on %s", listener.Addr())
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Printf("ingest: http server error: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

func startKafka(lc fx.Lifecycle, cfg config.Config, ingester *application.Ingester, logger *log.Logger) error {
	kcfg := cfg.KafkaConfig()
	if !kcfg.Enabled() {
		return nil
	}
	opts := []kafka.ConsumerOption{
		kafka.WithWorkers(kcfg.Workers),
		kafka.WithEnvelope(kcfg.Envelope),
	}
	if writer := kafka.NewWriter(kcfg); writer != nil {
		opts = append(opts, kafka.WithResultWriter(writer))
	}
	consumer, err := kafka.NewConsumer(kafka.NewReader(kcfg), ingester, logger, opts...)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				logger.Printf("ingest: consuming %s from %v", kcfg.Topic, kcfg.Brokers)
				if err := consumer.Run(runCtx); err != nil {
					logger.Printf("ingest: kafka consumer error: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return consumer.Close()
		},
	})
	return nil
}
