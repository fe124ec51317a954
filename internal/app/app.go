// Package app wires configuration into a ready-to-run notification
// Coordinator. Both binaries build their runtime through here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/stock-notifier/internal/config"
	"github.com/albapepper/stock-notifier/internal/db"
	"github.com/albapepper/stock-notifier/internal/notifications"
	"github.com/albapepper/stock-notifier/internal/runlock"
	"github.com/albapepper/stock-notifier/internal/sqlitelog"
	"github.com/albapepper/stock-notifier/internal/transport"
)

// App holds the long-lived resources of one process.
type App struct {
	Config      *config.Config
	Pool        *db.Pool
	Store       *notifications.Store
	Coordinator *notifications.Coordinator
	Sink        notifications.LogSink
	Lock        *runlock.Lock // nil when REDIS_URL is unset

	closers []func() error
	logger  *slog.Logger
}

// New validates cfg, connects to Postgres, opens the log sink, and builds
// the Coordinator. observer may be nil.
func New(ctx context.Context, cfg *config.Config, observer notifications.Observer, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a := &App{Config: cfg, Pool: pool, logger: logger}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	a.Store = notifications.NewStore(pool)

	a.Sink, err = a.openSink(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Coordinator, err = BuildCoordinator(cfg, a.Store, a.Sink, observer, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.RedisURL != "" {
		client, err := runlock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("run lock: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.Lock = runlock.New(client, lockKey, cfg.RunLockTTL)
	}
	return a, nil
}

const lockKey = "stock-notifier:run"

// Run executes one notification run at now. With a run lock configured,
// it returns runlock.ErrLocked without sending when another process is
// mid-run.
func (a *App) Run(ctx context.Context, now time.Time, dryRun bool) (*notifications.Summary, error) {
	if a.Lock == nil {
		return a.Coordinator.Run(ctx, now, dryRun)
	}

	token := uuid.NewString()
	if err := a.Lock.Acquire(ctx, token); err != nil {
		return nil, err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		released, err := a.Lock.Release(rctx, token)
		switch {
		case err != nil:
			a.logger.Warn("Failed to release run lock", "error", err)
		case !released:
			a.logger.Warn("Run lock expired before the run finished", "ttl", a.Config.RunLockTTL)
		}
	}()
	return a.Coordinator.Run(ctx, now, dryRun)
}

func (a *App) openSink(ctx context.Context) (notifications.LogSink, error) {
	switch a.Config.LogSink {
	case config.SinkSQLite:
		s, err := sqlitelog.Open(ctx, a.Config.LogSinkPath)
		if err != nil {
			return nil, fmt.Errorf("log sink: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.logger.Info("Notification log sink", "kind", config.SinkSQLite, "path", a.Config.LogSinkPath)
		return s, nil
	default:
		return a.Store, nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}

// BuildCoordinator creates one Dispatcher per channel and the Coordinator
// over them. Every dispatcher fetches with the union of the enabled flags
// and filters for its own channel afterwards.
func BuildCoordinator(
	cfg *config.Config,
	dir notifications.Directory,
	sink notifications.LogSink,
	observer notifications.Observer,
	logger *slog.Logger,
) (*notifications.Coordinator, error) {
	fetch := notifications.Filter{Email: cfg.EmailEnabled, SMS: cfg.SMSEnabled}

	var channels []notifications.ChannelConfig
	for _, ch := range notifications.Channels {
		enabled := channelEnabled(cfg, ch)
		cc := notifications.ChannelConfig{Channel: ch, Enabled: enabled}
		if enabled {
			d, err := notifications.NewDispatcher(ch, notifications.DispatcherConfig{
				Directory:   dir,
				Sender:      buildSender(cfg, ch, logger),
				Sink:        sink,
				Fetch:       fetch,
				Workers:     cfg.Workers,
				CallTimeout: cfg.CallTimeout,
				Logger:      logger,
			})
			if err != nil {
				return nil, err
			}
			cc.Runner = d
		}
		channels = append(channels, cc)
	}
	return notifications.NewCoordinator(channels, observer, logger)
}

func channelEnabled(cfg *config.Config, ch notifications.Channel) bool {
	switch ch {
	case notifications.ChannelEmail:
		return cfg.EmailEnabled
	case notifications.ChannelSMS:
		return cfg.SMSEnabled
	}
	return false
}

func buildSender(cfg *config.Config, ch notifications.Channel, logger *slog.Logger) notifications.Sender {
	switch ch {
	case notifications.ChannelSMS:
		return notifications.NewSMSSender(
			buildTransport("sms", cfg.SMSTransport, cfg.SMSAPIURL, cfg.SMSAPIKey, cfg, logger),
			cfg.SMSFromNumber, logger)
	default:
		return notifications.NewEmailSender(
			buildTransport("email", cfg.EmailTransport, cfg.EmailAPIURL, cfg.EmailAPIKey, cfg, logger),
			cfg.EmailFrom, cfg.EmailSubject, logger)
	}
}

func buildTransport(name, kind, url, key string, cfg *config.Config, logger *slog.Logger) notifications.Transport {
	if kind == config.TransportLog {
		return transport.NewLogClient(name, logger)
	}
	return transport.NewClient(url, key, cfg.TransportRequestsPerSecond, logger)
}
