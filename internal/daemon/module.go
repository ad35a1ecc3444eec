// Package daemon composes the delivery core into a running process.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/auth"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/config"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/delivery"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/gateway"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/httpapi"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/lock"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/logging"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/node"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/notify"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/presence"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/profile"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/syncer"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/unread"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/visibility"
)

const tokenTTL = 72 * time.Hour

// notificationGCInterval paces the expired-notification sweeper.
const notificationGCInterval = time.Hour

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideProfiles,
			provideMachine,
			provideMirror,
			providePresence,
			provideCounter,
			provideDispatcher,
			provideQueue,
			provideOverlay,
			provideSyncer,
			provideTokens,
			provideHub,
			provideGateway,
			provideAPI,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(node.LogPath(cfg.DataDir), cfg.Node)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := node.EnsureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	logger.Info("acquiring daemon lock", zap.String("data_dir", node.Dir(cfg.DataDir)))
	l, err := lock.Acquire(node.Dir(cfg.DataDir))
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := node.DBPath(cfg.DataDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideProfiles(db *store.DB) profile.Source {
	return profile.NewStoreSource(db)
}

func provideMachine(db *store.DB, profiles profile.Source, b *bus.Bus, logger *zap.Logger) *delivery.Machine {
	return delivery.NewMachine(db, profiles, b, logger)
}

// provideMirror wires the cross-instance presence mirror when Redis is
// configured; without it presence stays node-local.
func provideMirror(cfg *config.Config, logger *zap.Logger) presence.Mirror {
	if cfg.RedisAddr == "" {
		return nil
	}
	logger.Info("presence mirror enabled", zap.String("redis_addr", cfg.RedisAddr))
	return presence.NewRedisMirror(cfg.RedisAddr)
}

func providePresence(cfg *config.Config, db *store.DB, b *bus.Bus, logger *zap.Logger, mirror presence.Mirror) *presence.Store {
	return presence.NewStore(db, b, logger, mirror, cfg.PresenceTimeout.Duration)
}

func provideCounter(cfg *config.Config, db *store.DB, b *bus.Bus, logger *zap.Logger) *unread.Counter {
	return unread.NewCounter(db, b, logger, cfg.CounterRetries)
}

// provideDispatcher wires the Kafka push transport when brokers are
// configured; otherwise pushes are dropped and only the durable queue
// carries missed-message notifications.
func provideDispatcher(cfg *config.Config, logger *zap.Logger) notify.Dispatcher {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.NopDispatcher{}
	}
	logger.Info("push dispatcher enabled",
		zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	return notify.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func provideQueue(cfg *config.Config, db *store.DB, dispatcher notify.Dispatcher, b *bus.Bus, logger *zap.Logger) *notify.Queue {
	return notify.NewQueue(db, dispatcher, b, logger, cfg.NotificationTTL.Duration)
}

func provideOverlay(db *store.DB, profiles profile.Source, logger *zap.Logger) *visibility.Overlay {
	return visibility.NewOverlay(db, profiles, logger)
}

func provideSyncer(db *store.DB, machine *delivery.Machine, pres *presence.Store,
	counter *unread.Counter, queue *notify.Queue, overlay *visibility.Overlay,
	profiles profile.Source, dispatcher notify.Dispatcher, b *bus.Bus, logger *zap.Logger) *syncer.Synchronizer {
	return syncer.New(db, machine, pres, counter, queue, overlay, profiles, dispatcher, b, logger)
}

func provideTokens(cfg *config.Config) *auth.Tokens {
	return auth.NewTokens(cfg.JWTSecret, tokenTTL)
}

func provideHub(db *store.DB, b *bus.Bus, logger *zap.Logger) *gateway.Hub {
	return gateway.NewHub(db, b, logger)
}

func provideGateway(hub *gateway.Hub, sync *syncer.Synchronizer, machine *delivery.Machine,
	pres *presence.Store, tokens *auth.Tokens, b *bus.Bus, logger *zap.Logger) *gateway.Gateway {
	return gateway.New(hub, sync, machine, pres, tokens, b, logger)
}

func provideAPI(db *store.DB, sync *syncer.Synchronizer, machine *delivery.Machine,
	pres *presence.Store, counter *unread.Counter, overlay *visibility.Overlay,
	tokens *auth.Tokens, gw *gateway.Gateway, logger *zap.Logger) *httpapi.Server {
	return httpapi.New(db, sync, machine, pres, counter, overlay, tokens, gw, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, hub *gateway.Hub,
	sync *syncer.Synchronizer, queue *notify.Queue, pres *presence.Store,
	db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Sessions of a previous process are gone; their records
			// must not read as online.
			if err := pres.Reset(); err != nil {
				return err
			}

			hub.Run(context.Background())
			sync.Start(context.Background())
			queue.StartGC(context.Background(), notificationGCInterval)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			queue.StopGC()
			sync.Stop()
			hub.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
