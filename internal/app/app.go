package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trellobot/internal/config"
	"trellobot/internal/eventbus"
	"trellobot/internal/feed"
	"trellobot/internal/maintenance"
	"trellobot/internal/notifier"
	"trellobot/internal/notify"
	"trellobot/internal/observability/pprof"
	"trellobot/internal/storage"
	"trellobot/internal/trello"
	kit "trellobot/internal/transport"
	"trellobot/internal/transport/slack"
	"trellobot/internal/transport/telegram"
	logx "trellobot/pkg/logx"
	"trellobot/pkg/systemd"
)

type App struct {
	cfgm    *config.Manager
	sup     *Supervisor
	started time.Time

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	client  *trello.Client
	adapter kit.Adapter

	notif  *notifier.Service
	disp   *feed.Dispatcher
	notify *notify.Notifier
	poller *feed.Poller
	maint  *maintenance.Service
	pprof  *pprof.Service
}

// New loads the config and builds every component. It logs in to the chat
// platform but does not start polling.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The chat sink needs the adapter, which needs a logger: start with the
	// chat sink off, then enable it once the target is set.
	bootLogCfg := mapLogConfig(cfg)
	bootLogCfg.Chat.Enabled = false
	logSvc, root := logx.New(bootLogCfg, nil)
	log := root.With(logx.String("comp", "app"))
	log.Debug("debugging mode enabled")

	a := &App{cfgm: cfgm, log: log, logs: logSvc, bus: eventbus.New()}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if a.store, err = storage.Open(sc, root); err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	tc, err := mapTrelloConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	if a.client, err = trello.New(tc, root.With(logx.String("comp", "trello"))); err != nil {
		return nil, a.abort(err)
	}

	if a.adapter, err = a.newAdapter(ctx, cfg, root); err != nil {
		return nil, a.abort(err)
	}
	log.Info("logged in on chat", logx.String("driver", a.adapter.Name()), logx.String("as", a.adapter.Self().DisplayName))

	logSvc.SetSender(a.adapter)
	logSvc.SetChatTarget(logTarget(cfg))
	logSvc.Apply(mapLogConfig(cfg))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	var dedup notifier.DedupStore
	if ncfg.PersistDedup {
		dedup = a.store
	}
	a.notif = notifier.New(ncfg, a.adapter, root, a.bus, dedup)
	a.disp = feed.NewDispatcher(a.bus, root)
	a.maint = maintenance.New(mapMaintenanceConfig(cfg), a.store, root)
	a.pprof = pprof.New(mapPprofConfig(cfg), root, a.health)
	return a, nil
}

func (a *App) newAdapter(ctx context.Context, cfg *Config, root logx.Logger) (kit.Adapter, error) {
	switch cfg.Chat.ChatDriver() {
	case "telegram":
		poll, err := parseDurationOrDefault("chat.poll_timeout", cfg.Chat.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:       cfg.Chat.Token,
			PollTimeout: poll,
			Status:      a.status,
		}, root.With(logx.String("comp", "telegram")))
	case "slack":
		lctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return slack.New(lctx, slack.Config{Token: cfg.Chat.Token}, root.With(logx.String("comp", "slack")))
	default:
		return nil, fmt.Errorf("unknown chat driver %q", cfg.Chat.Driver)
	}
}

// abort releases what New opened so far.
func (a *App) abort(err error) error {
	if a.client != nil {
		a.client.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return err
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start resolves the chat channel and the board set, then starts polling.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.started = time.Now()
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	target := notifyTarget(cfg)
	a.log.Debug("finding chat channel", logx.String("channel", target.Channel))
	info, err := a.adapter.Resolve(ctx, target)
	if err != nil {
		return fmt.Errorf("chat channel %s: %w", target.Channel, err)
	}
	a.log.Debug("chat channel found", logx.String("name", info.Name))

	boards, err := a.boards(ctx, cfg)
	if err != nil {
		return err
	}

	a.notify = notify.New(a.sup.Context(), a.notif, notify.Options{
		Target:  target,
		BotName: botName(cfg, a.adapter.Self()),
		Events:  cfg.EventsOrDefault(),
		Users:   cfg.Users,
	}, a.log)
	a.notify.Register(a.disp)

	a.disp.OnReady(func(me trello.Member) {
		a.log.Info("logged in as " + me.Username + " on Trello")
	})
	a.disp.OnAnyAction(func(board string, act trello.Action) {
		a.log.Trace("action dispatched", logx.String("board", board), logx.String("type", act.Type), logx.String("id", act.ID.String()))
	})
	a.disp.OnError(func(err error) {
		a.log.Error("trello feed error", logx.Err(err))
	})
	a.disp.OnCheckpoint(func(board string, id trello.ActionID) {
		a.log.Debug("checkpoint advanced", logx.String("board", board), logx.String("id", id.String()))
	})

	member := strings.TrimSpace(cfg.Trello.Member)
	if member == "" {
		member = "me"
	}
	a.poller = feed.NewPoller(a.client,
		feed.NewCheckpoints(a.store, trello.ActionID(cfg.Trello.LegacyCheckpoint)),
		a.disp, boards,
		feed.WithFrequency(cfg.Trello.Interval()),
		feed.WithLogger(a.log),
		feed.WithMember(member),
	)

	a.notif.Start(a.sup.Context())
	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.maint.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.poller.Start(a.sup.Context()); err != nil {
		return err
	}
	a.pprof.Start(a.sup.Context())

	// Debug trail of feed and delivery events.
	events, unsub := a.bus.Subscribe(128, "feed.", "notifier.")
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.Watchdog(c, a.log, func() bool { return a.sup.Err() == nil })
	})

	systemd.Ready(a.log)
	systemd.Status(a.log, fmt.Sprintf("polling %d boards", len(boards)))
	a.log.Info("app started", logx.Int("boards", len(boards)), logx.String("chat", a.adapter.Name()))
	return nil
}

// boards returns the configured boards or, with discover_boards, every open
// board of the member.
func (a *App) boards(ctx context.Context, cfg *Config) ([]string, error) {
	if list := cfg.Trello.BoardList(); len(list) > 0 || !cfg.Trello.DiscoverBoards {
		return list, nil
	}
	member := strings.TrimSpace(cfg.Trello.Member)
	if member == "" {
		member = "me"
	}
	found, err := a.client.Boards(ctx, member)
	if err != nil {
		return nil, fmt.Errorf("discover boards: %w", err)
	}
	var out []string
	for _, b := range found {
		if b.Closed {
			continue
		}
		out = append(out, b.ID)
		a.log.Info("board discovered", logx.String("board", b.ID), logx.String("name", b.Name))
	}
	if len(out) == 0 {
		return nil, errors.New("discover boards: member has no open boards")
	}
	return out, nil
}

// health fails once the supervisor saw a fatal error or every board's last
// cycle failed.
func (a *App) health() error {
	if err := a.Err(); err != nil {
		return err
	}
	if a.poller == nil {
		return nil
	}
	snap := a.poller.Snapshot()
	for _, st := range snap {
		if st.LastError == "" {
			return nil
		}
	}
	if len(snap) == 0 {
		return nil
	}
	return fmt.Errorf("all %d boards failing: %s", len(snap), snap[0].LastError)
}

func (a *App) status() string {
	var boards []feed.BoardStatus
	if a.poller != nil {
		boards = a.poller.Snapshot()
	}
	return renderStatus(time.Now(), a.started, boards, a.notif.Stats(), a.maint.Snapshot())
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping(a.log)

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// The poller goes first so an in-flight cycle can still queue its
	// notifications and save its checkpoint.
	step("poller", 5*time.Second, func(c context.Context) error {
		if a.poller == nil {
			return nil
		}
		return a.poller.Stop(c)
	})
	step("notifier", 5*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("maintenance", time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("pprof", 2*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })

	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.client.Close()

	a.log.Info("stopped")
	return a.logs.Close()
}
