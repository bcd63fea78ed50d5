package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"trellobot/internal/eventbus"
	rtsup "trellobot/internal/runtime/supervisor"
	"trellobot/internal/storage"
	kit "trellobot/internal/transport"
	logx "trellobot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Event types published on the bus.
const (
	EventQueued  = "notifier.queued"
	EventSent    = "notifier.sent"
	EventDeduped = "notifier.deduped"
	EventFailed  = "notifier.failed"
)

// DedupStore is the part of storage.Store used for cross-restart dedup.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (time.Time, bool, error)
}

var _ DedupStore = storage.Store(nil)

// Service implements an async notification pipeline:
// queue + worker(s) + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus
	store   DedupStore

	cfg     Config
	limiter *rate.Limiter

	queue   chan kit.Notification
	stopCh  chan struct{}
	sendWG  sync.WaitGroup
	sup     *rtsup.Supervisor
	started bool

	dmu   sync.Mutex
	dedup map[string]time.Time // key -> suppress until

	hmu     sync.Mutex
	history []HistoryItem

	queued, sent, deduped, failed atomic.Uint64
}

// New builds a stopped Service. store may be nil.
func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus, store DedupStore) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		store:   store,
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Apply updates rate, retry and dedup settings live. Worker count and queue
// size only change on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 5000
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
}

// SetAdapter swaps the delivery adapter (used when the chat side is rebuilt).
func (s *Service) SetAdapter(a kit.Adapter) {
	s.mu.Lock()
	s.adapter = a
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.queue = make(chan kit.Notification, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))
	workers, q, sup, stopCh := s.cfg.Workers, s.queue, s.sup, s.stopCh
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("notifier.worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			select {
			case <-stopCh:
				return nil
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		})
	}
	s.log.Debug("notifier started", logx.Int("workers", workers), logx.Int("queue", cap(q)))
}

// Stop refuses new notifications and drains the queue until ctx is done;
// whatever is still queued after that is dropped.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.started || s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh, q, sup := s.stopCh, s.queue, s.sup
	select {
	case <-stopCh:
		s.mu.Unlock()
		_ = sup.Wait(ctx)
		return
	default:
	}
	close(stopCh)
	s.mu.Unlock()

	// Blocked Notify calls observe stopCh and return; then the queue can close.
	s.sendWG.Wait()
	close(q)

	if err := sup.Wait(ctx); err != nil && errors.Is(err, ctx.Err()) {
		sup.Cancel()
		s.log.Warn("notifier stop timed out", logx.Int("dropped", len(q)))
	}
}

// Notify queues n. It waits for queue space until ctx is done, so a burst of
// board activity applies back-pressure instead of being dropped.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.started || s.stopCh == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	stopCh, q := s.stopCh, s.queue
	select {
	case <-stopCh:
		s.mu.Unlock()
		return ErrStopped
	default:
	}
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if n.Target.IsZero() {
		return fmt.Errorf("notifier: empty target")
	}
	if s.seen(ctx, n.Key) {
		s.deduped.Add(1)
		s.publish(EventDeduped, n, 0, nil)
		return nil
	}

	select {
	case q <- n:
		s.queued.Add(1)
		s.publish(EventQueued, n, 0, nil)
		return nil
	case <-stopCh:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	pending := 0
	if s.queue != nil {
		pending = len(s.queue)
	}
	s.mu.Unlock()
	return Stats{
		Queued:  s.queued.Load(),
		Sent:    s.sent.Load(),
		Deduped: s.deduped.Load(),
		Failed:  s.failed.Load(),
		Pending: pending,
	}
}

// History returns recently delivered notifications, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(n kit.Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Key: n.Key, Title: n.Message.Title})
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan kit.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, n kit.Notification) {
	s.mu.Lock()
	cfg, lim, ad := s.cfg, s.limiter, s.adapter
	s.mu.Unlock()
	if ad == nil {
		s.failed.Add(1)
		s.log.Error("notification dropped: no adapter", logx.String("key", n.Key))
		return
	}
	// A duplicate may have been queued before the first copy was delivered.
	if s.seen(ctx, n.Key) {
		s.deduped.Add(1)
		s.publish(EventDeduped, n, 0, nil)
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := ad.Send(callCtx, n.Target, n.Message)
		cancel()
		if err == nil {
			s.sent.Add(1)
			s.markSent(ctx, n.Key, cfg)
			s.appendHistory(n)
			s.publish(EventSent, n, attempt, nil)
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			return
		}
		s.log.Debug("notify send failed", logx.String("key", n.Key), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))
		if attempt >= maxAttempts {
			break
		}

		delay := retryDelay(cfg, attempt)
		var ra *kit.RetryAfterError
		if errors.As(err, &ra) && ra.After > delay {
			delay = ra.After
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	s.failed.Add(1)
	s.log.Error("notification failed", logx.String("key", n.Key), logx.String("title", n.Message.Title), logx.Int("attempts", maxAttempts), logx.Err(lastErr))
	s.publish(EventFailed, n, maxAttempts, lastErr)
}

// seen reports whether key was delivered inside the dedup window.
func (s *Service) seen(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	s.mu.Lock()
	window, persist, st := s.cfg.DedupWindow, s.cfg.PersistDedup, s.store
	s.mu.Unlock()
	if window <= 0 {
		return false
	}
	now := time.Now()

	s.dmu.Lock()
	until, ok := s.dedup[key]
	s.dmu.Unlock()
	if ok && now.Before(until) {
		return true
	}

	if persist && st != nil {
		cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		until, ok, err := st.GetDedup(cctx, key)
		cancel()
		if err != nil {
			s.log.Debug("dedup lookup failed", logx.String("key", key), logx.Err(err))
			return false
		}
		if ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return true
		}
	}
	return false
}

func (s *Service) markSent(ctx context.Context, key string, cfg Config) {
	if key == "" || cfg.DedupWindow <= 0 {
		return
	}
	now := time.Now()
	until := now.Add(cfg.DedupWindow)

	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	// evict the entries closest to expiry until within the cap
	for len(s.dedup) > cfg.DedupMaxEntries {
		var minKey string
		var minT time.Time
		for k, u := range s.dedup {
			if minKey == "" || u.Before(minT) {
				minKey, minT = k, u
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	if cfg.PersistDedup && s.store != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		if err := s.store.PutDedup(cctx, key, until); err != nil {
			s.log.Warn("dedup persist failed", logx.String("key", key), logx.Err(err))
		}
		cancel()
	}
}

func (s *Service) publish(typ string, n kit.Notification, attempts int, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{
		Channel:  n.Target.Channel,
		ThreadID: n.Target.ThreadID,
		Key:      n.Key,
		Title:    n.Message.Title,
		At:       time.Now(),
		Attempts: attempts,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), capped, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	j := 0.7 + rand.Float64()*0.6
	return min(time.Duration(float64(d)*j), cfg.RetryMaxDelay)
}
