// Package app wires configuration, logging, persistence, relay and the
// gateway client into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/small-frappuccino/eventcore/pkg/client"
	"github.com/small-frappuccino/eventcore/pkg/config"
	"github.com/small-frappuccino/eventcore/pkg/discord/gateway"
	"github.com/small-frappuccino/eventcore/pkg/discord/perf"
	"github.com/small-frappuccino/eventcore/pkg/errutil"
	"github.com/small-frappuccino/eventcore/pkg/ingest"
	"github.com/small-frappuccino/eventcore/pkg/log"
	"github.com/small-frappuccino/eventcore/pkg/relay"
	"github.com/small-frappuccino/eventcore/pkg/snapshot"
	"github.com/small-frappuccino/eventcore/pkg/storage"
	"github.com/small-frappuccino/eventcore/pkg/task"
	"github.com/small-frappuccino/eventcore/pkg/telemetry"
	"github.com/small-frappuccino/eventcore/pkg/util"
)

// TaskHeartbeat records liveness and prunes stale snapshot checkpoints.
const TaskHeartbeat = "runtime.heartbeat"

// Runtime is a fully wired event core that has not connected yet.
type Runtime struct {
	Client *client.Client
	Router *task.TaskRouter
	Store  *storage.Store
	Relay  *relay.Relay

	cfg       config.Config
	logger    *slog.Logger
	lastEvent atomic.Int64
	cancelHB  func()
	shutdown  func(context.Context) error
}

// Build wires every component described by cfg. Persistence, relay and
// tracing are only set up when configured. The returned runtime must be
// closed.
func Build(ctx context.Context, cfg config.Config) (_ *Runtime, err error) {
	rt := &Runtime{cfg: cfg, logger: log.ApplicationLogger()}
	defer func() {
		if err != nil {
			rt.Close(context.Background())
		}
	}()

	shutdown, err := telemetry.Setup(ctx, util.AppName, Version, telemetry.Options{
		Endpoint:    cfg.OTelEndpoint,
		Disabled:    cfg.OTelDisabled,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	rt.shutdown = shutdown

	routerCfg := task.Defaults()
	if cfg.TaskGroupBuffer > 0 {
		routerCfg.GroupBuffer = cfg.TaskGroupBuffer
	}
	if cfg.TaskMaxAttempts > 0 {
		routerCfg.DefaultMaxAttempts = cfg.TaskMaxAttempts
	}
	rt.Router = task.NewRouter(routerCfg)

	opts := []client.Option{
		client.WithLogger(log.DiscordLogger()),
		client.WithIngestHook(func(ingest.Update) { rt.lastEvent.Store(time.Now().UnixNano()) }),
	}

	if cfg.PersistenceEnabled() {
		rt.Store = storage.NewStore(cfg.SnapshotDB)
		if err := errutil.HandleStoreError("init", rt.Store.Init); err != nil {
			return nil, err
		}
		cp := snapshot.NewCheckpointer(rt.Store, rt.Router, log.DatabaseLogger())
		opts = append(opts, client.WithObserver(cp))
	}

	rt.Client = client.New(opts...)

	if rt.Store != nil {
		n, err := snapshot.Restore(ctx, rt.Client.Store(), rt.Store, log.DatabaseLogger())
		if err != nil {
			return nil, fmt.Errorf("restore snapshots: %w", err)
		}
		rt.logger.Info("Snapshots restored", "count", n, "db", cfg.SnapshotDB)

		rt.Router.RegisterHandler(TaskHeartbeat, rt.heartbeat)
		if cfg.HeartbeatInterval > 0 {
			rt.cancelHB = rt.Router.ScheduleEvery(cfg.HeartbeatInterval, task.Task{
				Type:    TaskHeartbeat,
				Options: task.TaskOptions{GroupKey: TaskHeartbeat, MaxAttempts: 1},
			})
		}
	}

	pubs, err := publishers(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(pubs) > 0 {
		rt.Relay = relay.New(rt.Router, log.ApplicationLogger(), pubs...)
		handles := rt.Relay.Bind(rt.Client.Registry(), cfg.RelayEvents...)
		names := make([]string, 0, len(pubs))
		for _, p := range pubs {
			names = append(names, p.Name())
		}
		rt.logger.Info("Relay enabled", "publishers", strings.Join(names, ","), "events", len(handles))
	}
	return rt, nil
}

func publishers(ctx context.Context, cfg config.Config) ([]relay.Publisher, error) {
	var pubs []relay.Publisher
	if cfg.NATSURL != "" {
		p, err := relay.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if cfg.RedisURL != "" {
		p, err := relay.NewRedisPublisher(ctx, cfg.RedisURL)
		if err != nil {
			for _, prev := range pubs {
				_ = prev.Close()
			}
			return nil, err
		}
		pubs = append(pubs, p)
	}
	return pubs, nil
}

// heartbeat writes liveness markers and prunes checkpoints older than the
// retention window.
func (rt *Runtime) heartbeat(ctx context.Context, _ any) error {
	now := time.Now().UTC()
	if err := rt.Store.SetHeartbeat(now); err != nil {
		return err
	}
	if ns := rt.lastEvent.Load(); ns > 0 {
		if err := rt.Store.SetLastEvent(time.Unix(0, ns)); err != nil {
			return err
		}
	}
	if rt.cfg.SnapshotRetention > 0 {
		n, err := rt.Store.PruneSnapshots(ctx, now.Add(-rt.cfg.SnapshotRetention))
		if err != nil {
			return err
		}
		if n > 0 {
			log.DatabaseLogger().Info("Pruned stale snapshots", "count", n)
		}
	}
	return nil
}

// Close stops the runtime in dependency order: the client stops producing,
// the router drains queued checkpoints and publishes, then the store,
// publishers and tracer provider are closed.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Client != nil {
		if err := rt.Client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}
	if rt.cancelHB != nil {
		rt.cancelHB()
	}
	if rt.Router != nil {
		rt.Router.Close()
	}
	if rt.Relay != nil {
		if err := rt.Relay.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if rt.shutdown != nil {
		if err := rt.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run sets up logging from cfg, builds the runtime, connects and blocks
// until ctx is done or the process is interrupted.
func Run(ctx context.Context, cfg config.Config) error {
	started := time.Now()

	if err := log.SetupLogger(log.Options{
		Dir:        cfg.LogDir,
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.GlobalLogger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	perf.SetThreshold(cfg.SlowUpdateThreshold)

	appName := util.AppName
	log.ApplicationLogger().Info(formatStartupMessage(appName, AppVersion(), Version))

	rt, err := Build(ctx, cfg)
	if err != nil {
		return err
	}

	log.DiscordLogger().Info("Authenticating with Discord API (token redacted)")
	if err := rt.Client.Open(ctx, cfg.Token); err != nil {
		_ = rt.Close(context.Background())
		return fmt.Errorf("open gateway client: %w", err)
	}
	if s := rt.Client.Session(); s != nil && s.State != nil && s.State.User != nil {
		log.DiscordLogger().Info("Authenticated", "user", gateway.User(s.State.User).Tag(), "id", s.State.User.ID)
	}

	log.ApplicationLogger().Info(fmt.Sprintf("%s initialized in %s", appName, time.Since(started).Round(time.Millisecond)))
	log.ApplicationLogger().Info(fmt.Sprintf("%s running. Press Ctrl+C to stop...", appName))

	util.WaitForInterrupt(ctx)
	log.ApplicationLogger().Info(fmt.Sprintf("Stopping %s...", appName))

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), 30*time.Second, fmt.Errorf("application shutdown"))
	defer cancel()
	if err := rt.Close(shutdownCtx); err != nil {
		log.ErrorLoggerRaw().Error("Shutdown finished with errors", "err", err)
		return err
	}
	return nil
}

// formatStartupMessage omits the core version when it matches the
// application version.
func formatStartupMessage(appName, appVersion, coreVersion string) string {
	appName = strings.TrimSpace(appName)
	appVersion = strings.TrimSpace(appVersion)
	coreVersion = strings.TrimSpace(coreVersion)

	switch {
	case appVersion == "":
		return fmt.Sprintf("Starting %s (eventcore %s)...", appName, coreVersion)
	case appVersion == coreVersion:
		return fmt.Sprintf("Starting %s %s...", appName, appVersion)
	}
	return fmt.Sprintf("Starting %s %s (eventcore %s)...", appName, appVersion, coreVersion)
}
