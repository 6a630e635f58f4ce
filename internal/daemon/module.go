package daemon

import (
	"context"
	"errors"
	"os"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/channel"
	"github.com/lsanches/bico/internal/chat"
	"github.com/lsanches/bico/internal/config"
	"github.com/lsanches/bico/internal/lock"
	"github.com/lsanches/bico/internal/logging"
	"github.com/lsanches/bico/internal/notify"
	"github.com/lsanches/bico/internal/platform"
	"github.com/lsanches/bico/internal/profile"
	"github.com/lsanches/bico/internal/status"
	"github.com/lsanches/bico/internal/store"
	"github.com/lsanches/bico/internal/toast"
	"github.com/lsanches/bico/internal/wire"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	// Credential, when non-empty, replaces the stored credential before
	// connecting. Normally the stored one is reused across restarts.
	Credential string
}

// credential is the opaque bearer token the channel authenticates with.
type credential string

// ErrNoCredential is returned when neither the store nor Params carry a token.
var ErrNoCredential = errors.New("no credential stored for profile, start once with --credential")

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCredential,
			provideManager,
			provideChatStore,
			provideFetcher,
			provideEngine,
			provideMessenger,
			provideToasts,
			provideNotifier,
			provideRouter,
			provideControl,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
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

func provideCredential(p Params, db *store.DB) (credential, error) {
	if p.Credential != "" {
		if err := db.SaveCredential(p.Credential); err != nil {
			return "", err
		}
		return credential(p.Credential), nil
	}
	stored, err := db.LoadCredential()
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", ErrNoCredential
	}
	return credential(stored), nil
}

func provideManager(cfg *config.Config, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *channel.Manager {
	return channel.NewManager(channel.Options{
		URL:                  cfg.Server.ChannelURL,
		AckTimeout:           cfg.AckTimeout(),
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
	}, machine, b, logger)
}

func provideChatStore(cfg *config.Config, b *bus.Bus) *chat.Store {
	return chat.NewStore(cfg.EchoMatchWindow(), b)
}

func provideFetcher(cfg *config.Config, cred credential) chat.Fetcher {
	return chat.NewHTTPFetcher(cfg.Server.APIURL, string(cred))
}

func provideEngine(st *chat.Store, fetcher chat.Fetcher, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *chat.Engine {
	return chat.NewEngine(st, fetcher, b, logger, cfg.FallbackTimeout())
}

func provideMessenger(st *chat.Store, mgr *channel.Manager, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *chat.Messenger {
	return chat.NewMessenger(st, mgr, wire.ID(cfg.Server.UserID), b, logger)
}

func provideToasts(cfg *config.Config) *toast.Presenter {
	return toast.NewPresenter(cfg.Toast.Capacity, cfg.ToastDuration())
}

func provideNotifier(logger *zap.Logger) platform.Notifier {
	return platform.NewFreedesktop(logger)
}

func provideRouter(db *store.DB, toasts *toast.Presenter, notifier platform.Notifier, b *bus.Bus, logger *zap.Logger) *notify.Router {
	return notify.NewRouter(db, toasts, notifier, b, logger)
}

func provideControl(mgr *channel.Manager, messenger *chat.Messenger, b *bus.Bus, logger *zap.Logger) *Control {
	return NewControl(mgr, messenger, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, lk *lock.Lock, db *store.DB, mgr *channel.Manager, engine *chat.Engine, control *Control, router *notify.Router, toasts *toast.Presenter, cred credential, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the hydration engine (subscribes to chat.* bus events).
			engine.Start(context.Background())

			// Load persisted notifications and start routing notify.* events.
			if err := router.Start(context.Background()); err != nil {
				return err
			}

			// Accept ctl.* commands from an embedding frontend.
			control.Start(context.Background())

			// Connect in the background and join the configured scope, the
			// state machine reports progress.
			go func() {
				if err := mgr.Connect(context.Background(), string(cred), wire.ID(cfg.Server.Scope)); err != nil {
					logger.Error("channel connect failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			mgr.Disconnect()
			control.Stop()
			engine.Stop()
			router.Stop()
			toasts.Close()
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
