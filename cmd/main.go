package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hlabsdev/car-reservation-system/internal/auth"
	"github.com/hlabsdev/car-reservation-system/internal/clock"
	"github.com/hlabsdev/car-reservation-system/internal/config"
	"github.com/hlabsdev/car-reservation-system/internal/db"
	"github.com/hlabsdev/car-reservation-system/internal/db/memory"
	"github.com/hlabsdev/car-reservation-system/internal/db/postgres"
	"github.com/hlabsdev/car-reservation-system/internal/fleetsync"
	"github.com/hlabsdev/car-reservation-system/internal/handlers"
	"github.com/hlabsdev/car-reservation-system/internal/middleware"
	"github.com/hlabsdev/car-reservation-system/internal/models"
	"github.com/hlabsdev/car-reservation-system/internal/reservation"
	log "github.com/sirupsen/logrus"
)

// storage is the backend selected by STORAGE_DRIVER.
type storage struct {
	store reservation.Store
	cars  db.CarCollection
	ping  func(ctx context.Context) error
	close func()
}

func setupLogger(cfg config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}
	return nil
}

func buildStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.MongoDB)
		if err := db.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &storage{
			store: db.NewMongoReservationStore(client, database),
			cars:  &db.MongoCarCollection{Collection: database.Collection(db.CarsCollection)},
			ping: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &storage{
			store: postgres.NewStore(pool),
			cars:  postgres.NewCarDirectory(pool),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil

	case config.DriverMemory:
		return &storage{
			store: memory.NewStore(),
			cars:  memory.NewCarDirectory(demoCars()...),
			close: func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

// demoCars seeds the in-memory directory so the API is usable without a database.
func demoCars() []models.Car {
	now := time.Now().UTC()
	return []models.Car{
		{ID: "car-1", RegistrationNumber: "AB-123-CD", Brand: "Renault", Model: "Clio", Year: 2022, Status: models.CarStatusAvailable, CreatedAt: now, UpdatedAt: now},
		{ID: "car-2", RegistrationNumber: "EF-456-GH", Brand: "Peugeot", Model: "e-208", Year: 2023, Status: models.CarStatusAvailable, CreatedAt: now, UpdatedAt: now},
		{ID: "car-3", RegistrationNumber: "IJ-789-KL", Brand: "Toyota", Model: "Yaris", Year: 2021, Status: models.CarStatusMaintenance, CreatedAt: now, UpdatedAt: now},
	}
}

func newServer(cfg config.Config, st *storage) *http.Server {
	logger := log.StandardLogger()
	engine := reservation.NewEngine(st.store, st.cars, clock.NewSystem(), reservation.WithLogger(logger))

	router := handlers.NewRouter(handlers.RouterConfig{
		Cars:         handlers.NewCarHandler(st.cars, engine, logger),
		Reservations: handlers.NewReservationHandler(engine, st.cars, logger),
		Auth:         middleware.NewAuthMiddleware(auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)),
		RateLimiter:  middleware.NewRateLimitMiddleware(),
		RateLimit:    cfg.RateLimitRequests,
		RateWindow:   cfg.RateLimitWindow,
		Ping:         st.ping,
		Logger:       logger,
	})

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func run(ctx context.Context, cfg config.Config) error {
	st, err := buildStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer st.close()
	log.WithField("driver", cfg.StorageDriver).Info("Storage ready")

	if cfg.MQTTBroker != "" {
		sub := fleetsync.NewSubscriber(st.cars, cfg.MQTTStatusTopic, log.StandardLogger())
		if err := sub.Start(cfg.MQTTBroker, cfg.MQTTClientID); err != nil {
			return fmt.Errorf("fleet sync: %w", err)
		}
		defer sub.Stop()
	}

	srv := newServer(cfg, st)
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := setupLogger(cfg); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
