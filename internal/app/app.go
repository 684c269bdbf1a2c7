// Package app wires storage, services and the router into one running
// stack.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/gocab-backend/api"
	"github.com/semanticallynull/gocab-backend/events"
	"github.com/semanticallynull/gocab-backend/internal/clock"
	"github.com/semanticallynull/gocab-backend/internal/gemini"
	"github.com/semanticallynull/gocab-backend/internal/o11y"
	"github.com/semanticallynull/gocab-backend/ride"
	"github.com/semanticallynull/gocab-backend/store"
	"github.com/semanticallynull/gocab-backend/user"
)

const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
)

var ErrUnknownStorage = errors.New("unknown storage backend")

type Config struct {
	Storage       string
	DataDir       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	// SeedFile is a YAML user list used instead of the demo users.
	SeedFile string

	Latency    time.Duration
	MatchDelay time.Duration

	GeminiAPIKey string
	GeminiModel  string

	AMQPURL      string
	AMQPExchange string

	MetricsUsername string
	MetricsPassword string

	// Clock and Distance replace the real clock and the random trip
	// distance. Tests only.
	Clock    clock.Clock
	Distance func() int
}

type App struct {
	API   *api.API
	Users *user.Repository
	Rides *ride.Service
	Bus   *events.Bus

	cancel  context.CancelFunc
	closers []func() error
}

func New(ctx context.Context, cfg Config, obs *o11y.Observability) (*App, error) {
	logger := obs.Logger
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	a := &App{}
	backend, err := a.openBackend(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("storage ready", "backend", cfg.Storage)

	opts := []store.Option{store.WithLogger(logger), store.WithClock(cfg.Clock)}
	a.Users = user.NewRepository(store.NewCollection(user.Collection, backend, opts...))
	rides := ride.NewRepository(store.NewCollection(ride.Collection, backend, opts...))

	seed := user.DefaultUsers()
	if cfg.SeedFile != "" {
		seed, err = user.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	seeded, err := a.Users.Seed(ctx, seed)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}
	if seeded {
		logger.Info("seeded users", "count", len(seed))
	}

	a.Bus = events.NewBus(logger)
	a.Rides = ride.NewService(rides, ride.Config{
		MatchDelay: cfg.MatchDelay,
		Clock:      cfg.Clock,
		Distance:   cfg.Distance,
		Logger:     logger,
		Events:     a.Bus,
		Registry:   obs.Registry,
	})
	a.closers = append(a.closers, func() error {
		a.Rides.Close()
		return nil
	})

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if cfg.AMQPURL != "" {
		fwd, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, fwd.Close)
		go fwd.Run(runCtx, a.Bus)
		logger.Info("forwarding changes to RabbitMQ", "exchange", cfg.AMQPExchange)
	}

	ai, err := gemini.NewHTTPClient(ctx, gemini.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
		Logger: logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.API = api.New(a.Users, a.Rides, a.Bus, ai, obs, api.Config{
		Latency:         cfg.Latency,
		Clock:           cfg.Clock,
		MetricsUsername: cfg.MetricsUsername,
		MetricsPassword: cfg.MetricsPassword,
	})
	return a, nil
}

func (a *App) openBackend(ctx context.Context, cfg Config) (store.Backend, error) {
	switch cfg.Storage {
	case StorageMemory, "":
		return store.NewMemory(), nil

	case StorageFile:
		return store.NewFile(cfg.DataDir)

	case StoragePostgres:
		db, err := sqlx.ConnectContext(ctx, "pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		return pg, nil

	case StorageRedis:
		client, err := store.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return store.NewRedis(client), nil

	case StorageSQLite:
		db, err := store.OpenSQLite(cfg.SQLitePath, 4)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Storage)
}

// Close stops pending matches and releases every connection, newest first.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
