// Package app assembles the daemon: config, logging, storage, the chat
// adapter, and the reminder engine, with hot config reload and a bounded
// shutdown sequence.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/remind"
	"remindbot/internal/runtime/lifecycle"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
)

const (
	defaultTimezone     = "Asia/Shanghai"
	defaultKeyPrefix    = "alarm:clock:"
	defaultPendingTTL   = 2 * time.Minute
	defaultOneshotSlack = 5 * time.Minute
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor
	gate lifecycle.InitGate

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter

	sched    *remind.Scheduler
	svc      *remind.Service
	recovery *remind.Recovery
	router   *bot.Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the telegram sink disabled, point it at its chat, then
	// apply the real config so the first Apply never warns about a missing
	// target.
	baseLogCfg := mapLoggingConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	applyLogTarget(logSvc, cfg)
	logSvc.Apply(mapLoggingConfig(cfg))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	rcfg, err := mapReminderConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}

	notifier := bot.NewNotifier(ad, log)
	a.sched = remind.NewScheduler(store, notifier, rcfg.Location, log)
	a.svc = remind.NewService(rcfg, store, a.sched, log)
	a.recovery = remind.NewRecovery(&a.gate, store, a.sched, rcfg.KeyPrefix, log)
	a.router = bot.NewRouter(ad, a.svc, log)

	return a, nil
}

// Done is closed when the app run context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, err := mapReminderConfig(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// Re-arm timers from durable records before handling user traffic. A
	// failed pass is logged and left for the next process start; the bot
	// still serves commands against whatever the store holds.
	if err := a.recovery.Run(a.sup.Context()); err != nil {
		a.log.Error("startup recovery aborted", logx.Err(err))
	}

	a.sup.Go0("updates.dispatch", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case upd, ok := <-a.updates:
				if !ok {
					return
				}
				a.router.HandleUpdate(c, upd)
			}
		}
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(old, cfg *config.Config) {
	applyLogTarget(a.logs, cfg)
	a.logs.Apply(mapLoggingConfig(cfg))

	a.svc.SetOwners(cfg.Telegram.OwnerUserIDs)

	// Storage and reminder engine settings are fixed at startup; the
	// validator already vetted them, so just flag the restart need.
	if old != nil && (old.Storage != cfg.Storage || old.Reminder != cfg.Reminder) {
		a.log.Warn("storage/reminder config changed; restart required to take effect")
	}
	if old != nil && old.Telegram.Token != cfg.Telegram.Token {
		a.log.Warn("telegram token changed; restart required to take effect")
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context, reason lifecycle.StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	// Bound each shutdown step so one component cannot stall the exit.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Err(stepCtx.Err()))
		}
	}

	step("scheduler", 2*time.Second, func(context.Context) error { a.sched.Stop(); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func applyLogTarget(logs *logx.Service, cfg *config.Config) {
	if raw := strings.TrimSpace(cfg.Telegram.GroupLog); raw != "" {
		if chatID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			logs.SetTelegramTarget(chatID)
			return
		}
	}
	logs.SetTelegramTarget(0)
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "remindbot.db"
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busy,
	}, nil
}

func mapReminderConfig(cfg *config.Config) (remind.ServiceConfig, error) {
	tz := strings.TrimSpace(cfg.Reminder.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return remind.ServiceConfig{}, fmt.Errorf("reminder.timezone: invalid %q: %w", tz, err)
	}

	pendingTTL, err := config.ParseDurationOrDefault("reminder.pending_ttl", cfg.Reminder.PendingTTL, defaultPendingTTL)
	if err != nil {
		return remind.ServiceConfig{}, err
	}
	slack, err := config.ParseDurationOrDefault("reminder.oneshot_expiry_slack", cfg.Reminder.OneshotExpirySlack, defaultOneshotSlack)
	if err != nil {
		return remind.ServiceConfig{}, err
	}

	prefix := cfg.Reminder.KeyPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}

	return remind.ServiceConfig{
		KeyPrefix:    prefix,
		Location:     loc,
		PendingTTL:   pendingTTL,
		OneshotSlack: slack,
		Owners:       cfg.Telegram.OwnerUserIDs,
	}, nil
}
