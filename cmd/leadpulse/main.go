package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadpulse/internal/config"
	"leadpulse/internal/eventbus"
	"leadpulse/internal/executor"
	"leadpulse/internal/scheduler"
	"leadpulse/internal/storage"
	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, err := logx.NewService(loggingConfig(cfg))
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logSvc.Close() }()
	log := logSvc.Logger()
	mgr.SetLogger(log.With(logx.String("component", "config")))

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("component", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		return fmt.Errorf("build executor registry: %w", err)
	}

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	go drainEvents(events, log.With(logx.String("component", "events")))

	sched := scheduler.New(schedCfg, reg, store, bus, log.With(logx.String("component", "scheduler")))
	sched.Start(ctx)

	// Hot reload: log level and sinks apply live; scheduler and storage
	// settings need a restart.
	sub := mgr.Subscribe(1)
	defer mgr.Unsubscribe(sub)
	go func() { _ = mgr.Watch(ctx) }()
	go func() {
		for next := range sub {
			if next == nil {
				continue
			}
			if err := logSvc.Apply(loggingConfig(next)); err != nil {
				log.Warn("failed to apply logging config", logx.Err(err))
			}
		}
	}()

	<-ctx.Done()
	sched.Stop(context.Background())
	return nil
}

// drainEvents consumes the task lifecycle stream. Failures surface as
// warnings; everything else is debug-level operational trace.
func drainEvents(events <-chan eventbus.Event, log logx.Logger) {
	for ev := range events {
		switch ev.Type {
		case eventbus.TypeTaskFailed:
			log.Warn("task failed", logx.String("task_id", ev.TaskID), logx.Time("at", ev.Time))
		default:
			log.Debug("task event",
				logx.String("type", ev.Type),
				logx.String("task_id", ev.TaskID),
			)
		}
	}
}

func buildRegistry(cfg *config.Config, log logx.Logger) (*executor.Registry, error) {
	reg := executor.NewRegistry()

	wh := executor.NewWebhook(webhookConfig(cfg), log.With(logx.String("executor", "webhook")))
	stub := executor.NewLogOnly(log.With(logx.String("executor", "logonly")))

	// The messaging/scraping/analysis components live outside this
	// repo; the daemon stands them in with log-only executors.
	bindings := map[task.Kind]executor.Executor{
		task.KindNoop:         stub,
		task.KindWebhook:      wh,
		task.KindSendMessage:  stub,
		task.KindScrapeSource: stub,
		task.KindAnalyzeReply: stub,
	}
	for kind, ex := range bindings {
		if err := reg.Register(kind, ex); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	log.Info("executor registry built", logx.Int("kinds", len(reg.Kinds())))
	return reg, nil
}

func loggingConfig(cfg *config.Config) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{Driver: "none"}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 60*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	stop, err := config.ParseDurationOrDefault("scheduler.stop_timeout", cfg.Scheduler.StopTimeout, 5*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	dispatch, err := config.ParseDurationField("scheduler.dispatch_timeout", cfg.Scheduler.DispatchTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		PollInterval:    poll,
		StopTimeout:     stop,
		DispatchTimeout: dispatch,
		CompactionFloor: cfg.Scheduler.CompactionFloor,
		HistorySize:     cfg.Scheduler.HistorySize,
	}, nil
}

func webhookConfig(cfg *config.Config) executor.WebhookConfig {
	if cfg.Webhook == nil {
		return executor.WebhookConfig{}
	}
	timeout, _ := config.ParseDurationField("webhook.timeout", cfg.Webhook.Timeout)
	return executor.WebhookConfig{
		Timeout:    timeout,
		RatePerSec: cfg.Webhook.RatePerSec,
		Burst:      cfg.Webhook.Burst,
	}
}
