// Package maintenance runs cron-driven housekeeping against the store.
package maintenance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "trellobot/pkg/logx"
)

const (
	DefaultSchedule = "@hourly"
	// Off disables pruning.
	Off = "-"

	defaultJobTimeout = time.Minute
)

// SecondOptional allows both 5-field and 6-field (with seconds) specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a prune schedule. It returns a nil schedule when
// pruning is turned off with "-"; empty means DefaultSchedule.
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch spec {
	case Off:
		return nil, nil
	case "":
		spec = DefaultSchedule
	}
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Pruner drops expired notification dedup entries.
type Pruner interface {
	PruneDedup(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	PruneSchedule string
	Timezone      string
	JobTimeout    time.Duration
}

// Snapshot is the state reported by /status.
type Snapshot struct {
	Schedule string
	Next     time.Time
	LastRun  time.Time
	Pruned   int
	LastErr  string
}

type Service struct {
	mu    sync.Mutex
	cfg   Config
	log   logx.Logger
	store Pruner
	now   func() time.Time

	ctx   context.Context
	c     *cron.Cron
	entry cron.EntryID

	last Snapshot
}

func New(cfg Config, store Pruner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, log: log.With(logx.String("comp", "maintenance")), now: time.Now}
}

// Start schedules the jobs. ctx bounds every run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	sched, err := ParseSchedule(s.cfg.PruneSchedule)
	if err != nil {
		return err
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("maintenance timezone: %w", err)
		}
		loc = l
	}
	cl := cronLogger{s.log}
	s.c = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if sched == nil {
		s.log.Info("dedup pruning disabled")
	} else {
		s.entry = s.c.Schedule(sched, cron.FuncJob(func() { _, _ = s.RunNow(s.ctx) }))
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.String("prune_schedule", s.scheduleLocked()))
	return nil
}

func (s *Service) scheduleLocked() string {
	spec := strings.TrimSpace(s.cfg.PruneSchedule)
	if spec == "" {
		return DefaultSchedule
	}
	return spec
}

// Apply swaps the schedule or timezone, restarting cron when either changed.
func (s *Service) Apply(cfg Config) error {
	if _, err := ParseSchedule(cfg.PruneSchedule); err != nil {
		return err
	}
	s.mu.Lock()
	changed := strings.TrimSpace(cfg.PruneSchedule) != strings.TrimSpace(s.cfg.PruneSchedule) ||
		strings.TrimSpace(cfg.Timezone) != strings.TrimSpace(s.cfg.Timezone)
	prev := s.cfg
	s.cfg = cfg
	old := s.c
	if old == nil || !changed {
		s.mu.Unlock()
		return nil
	}
	s.c, s.entry = nil, 0
	s.mu.Unlock()

	// a running prune needs s.mu; wait for it unlocked
	<-old.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if err := s.startLocked(); err != nil {
		s.cfg = prev
		_ = s.startLocked()
		return err
	}
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

// RunNow prunes expired dedup entries immediately.
func (s *Service) RunNow(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	timeout := s.cfg.JobTimeout
	s.mu.Unlock()
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.now()
	n, err := s.store.PruneDedup(rctx, start)

	s.mu.Lock()
	s.last.LastRun = start
	s.last.Pruned = n
	s.last.LastErr = ""
	if err != nil {
		s.last.LastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("dedup prune failed", logx.Err(err))
		return n, err
	}
	s.log.Debug("dedup pruned", logx.Int("removed", n), logx.Duration("took", time.Since(start)))
	return n, nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.last
	out.Schedule = s.scheduleLocked()
	if s.c != nil && s.entry != 0 {
		out.Next = s.c.Entry(s.entry).Next
	}
	return out
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
