package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/config"
	"github.com/warp/recognition-engine/factory"
	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/notify"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/rewards"
	"github.com/warp/recognition-engine/store/memory"
	"github.com/warp/recognition-engine/store/postgres"
	"github.com/warp/recognition-engine/store/sqlite"
)

// =============================================================================
// SERVICE GRAPH
// =============================================================================

// Backend is one persistence handle implementing every store contract, so a
// single store transaction can span wallets, recognitions and the catalog.
// store/memory, store/sqlite and store/postgres all satisfy it.
type Backend interface {
	points.Store
	budget.Store
	recognition.Store
	rewards.Store
	achievements.Store
	notify.Store

	// Reset drops all data. Used by demo scenarios.
	Reset(ctx context.Context) error
	Close() error
}

// Services is the wired domain layer shared by the HTTP API, the scheduler
// and the admin CLI.
type Services struct {
	Store        Backend
	Ledger       *points.Ledger
	Budget       *budget.Service
	Recognitions *recognition.Engine
	Rewards      *rewards.Service
	Achievements *achievements.Awarder
	Inbox        *notify.Inbox
	Provisioner  *identity.Provisioner
	Seeds        *factory.Applier

	closers []func() error
}

// NewServices wires the domain services on store. Notifications go to the
// persistent inbox and then to every extra sink.
func NewServices(store Backend, log logrus.FieldLogger, sinks ...points.NotificationSink) *Services {
	if log == nil {
		log = logrus.StandardLogger()
	}
	inbox := notify.NewInbox(store, log)
	fanout := append(notify.Multi{inbox}, sinks...)

	ledger := points.NewLedger(store, fanout, log)
	budgetSvc := budget.NewService(store, store, ledger, log)
	awarder := achievements.NewAwarder(store, store, ledger, log)
	rewardSvc := rewards.NewService(store, store, store, ledger, log)
	provisioner := identity.NewProvisioner(store, log)
	engine := recognition.NewEngine(store, store, budgetSvc, ledger,
		recognition.WithAchievements(awarder),
		recognition.WithLogger(log))

	return &Services{
		Store:        store,
		Ledger:       ledger,
		Budget:       budgetSvc,
		Recognitions: engine,
		Rewards:      rewardSvc,
		Achievements: awarder,
		Inbox:        inbox,
		Provisioner:  provisioner,
		Seeds:        factory.NewApplier(provisioner, budgetSvc, rewardSvc, awarder, log),
	}
}

// =============================================================================
// FROM CONFIGURATION
// =============================================================================

// Open builds the service graph described by cfg: the configured store,
// a log sink, and a Redis publisher when REDIS_ADDR is set. Close releases
// everything Open acquired.
func Open(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Services, error) {
	store, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}
	closers := []func() error{store.Close}
	sinks := []points.NotificationSink{notify.NewLogSink(log)}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			store.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		closers = append(closers, client.Close)
		sinks = append(sinks, notify.NewRedisSink(client, cfg.RedisChannel))
		log.WithField("channel", cfg.RedisChannel).Info("publishing notifications to redis")
	}

	svc := NewServices(store, log, sinks...)
	svc.closers = closers
	return svc, nil
}

// OpenBackend opens the store selected by cfg.DBDriver.
func OpenBackend(cfg config.Config) (Backend, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return postgres.New(cfg.DatabaseURL)
	case config.DriverSQLite:
		return sqlite.New(cfg.DBPath)
	}
	return nil, points.Invalid("DB_DRIVER", "unknown driver %q", cfg.DBDriver)
}

// Close releases the store and any publisher connections, last opened first.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}
