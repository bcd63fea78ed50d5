package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trellobot/internal/runtime/supervisor"
	"trellobot/internal/trello"
	logx "trellobot/pkg/logx"
)

const DefaultFrequency = time.Second

// Source is the part of the Trello client the poller uses.
type Source interface {
	Member(ctx context.Context, id string) (trello.Member, error)
	Actions(ctx context.Context, boardID string, since trello.ActionID) ([]trello.Action, error)
}

// BoardStatus is a point-in-time view of one board's loop.
type BoardStatus struct {
	Board      string
	Checkpoint trello.ActionID
	LastCycle  time.Time
	LastError  string
	Cycles     uint64
	Published  uint64
	Errors     uint64
}

type Option func(*Poller)

// WithFrequency sets the delay between cycles. Values <= 0 use DefaultFrequency.
func WithFrequency(d time.Duration) Option { return func(p *Poller) { p.freq = d } }

func WithLogger(log logx.Logger) Option { return func(p *Poller) { p.log = log } }

// WithMember makes Start resolve the token owner once and report it through Sink.Ready.
func WithMember(id string) Option { return func(p *Poller) { p.member, p.identify = id, true } }

// Poller runs one loop per board: fetch, sequence, publish, save checkpoint.
//
// Each board has its own goroutine, so a slow or failing board never delays
// another, and a board never runs two cycles at once (missed ticks are dropped).
type Poller struct {
	src    Source
	cps    CheckpointStore
	sink   Sink
	boards []string
	freq   time.Duration
	log    logx.Logger

	identify bool
	member   string

	mu     sync.Mutex
	state  map[string]*boardState
	sup    *supervisor.Supervisor
	stopCh chan struct{}
	once   sync.Once
}

type boardState struct {
	board  string
	loaded bool
	status BoardStatus
}

func NewPoller(src Source, cps CheckpointStore, sink Sink, boards []string, opts ...Option) *Poller {
	p := &Poller{
		src:    src,
		cps:    cps,
		sink:   sink,
		state:  map[string]*boardState{},
		stopCh: make(chan struct{}),
	}
	for _, b := range boards {
		b = strings.TrimSpace(b)
		if b == "" || slices.Contains(p.boards, b) {
			continue
		}
		p.boards = append(p.boards, b)
		p.state[b] = &boardState{board: b, status: BoardStatus{Board: b}}
	}
	for _, o := range opts {
		o(p)
	}
	if p.freq <= 0 {
		p.freq = DefaultFrequency
	}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	p.log = p.log.With(logx.String("comp", "feed"))
	return p
}

// Start launches the board loops. The first cycle of every board runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	if p.src == nil || p.cps == nil || p.sink == nil {
		return errors.New("feed: poller needs a source, checkpoint store and sink")
	}
	if len(p.boards) == 0 {
		return errors.New("feed: no boards to poll")
	}
	p.mu.Lock()
	if p.sup != nil {
		p.mu.Unlock()
		return errors.New("feed: poller already started")
	}
	p.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(p.log))
	sup := p.sup
	p.mu.Unlock()

	if p.identify {
		sup.GoRestart("feed.member", func(ctx context.Context) error {
			me, err := p.src.Member(ctx, p.member)
			if err != nil {
				return fmt.Errorf("resolve trello member: %w", err)
			}
			p.sink.Ready(me)
			return nil
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second),
			supervisor.WithMaxRestarts(5),
			supervisor.WithOnRestart(func(err error) {
				if ctx.Err() == nil {
					p.sink.Error(err)
				}
			}))
	}

	for _, b := range p.boards {
		st := p.state[b]
		sup.GoRestart("feed.board."+b, func(ctx context.Context) error {
			return p.loop(ctx, st)
		}, supervisor.WithRestartBackoff(time.Second, time.Minute),
			// a failing board must not mark the poller as failed
			supervisor.WithPublishFirstError(false),
			supervisor.WithOnRestart(func(err error) {
				p.sink.Error(fmt.Errorf("board %s loop: %w", b, err))
			}))
	}
	p.log.Info("poller started", logx.Int("boards", len(p.boards)), logx.Duration("frequency", p.freq))
	return nil
}

// Stop prevents further cycles and waits for in-flight ones. When ctx expires
// first, in-flight fetches are cancelled.
func (p *Poller) Stop(ctx context.Context) error {
	p.once.Do(func() { close(p.stopCh) })
	p.mu.Lock()
	sup := p.sup
	p.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Wait(ctx)
	sup.Cancel()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Snapshot returns the status of every board, sorted by board id.
func (p *Poller) Snapshot() []BoardStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]BoardStatus, 0, len(p.state))
	for _, st := range p.state {
		out = append(out, st.status)
	}
	slices.SortFunc(out, func(a, b BoardStatus) int { return strings.Compare(a.Board, b.Board) })
	return out
}

func (p *Poller) loop(ctx context.Context, st *boardState) error {
	select {
	case <-p.stopCh:
		return nil
	default:
	}
	p.cycle(ctx, st)

	t := time.NewTicker(p.freq)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-t.C:
			p.cycle(ctx, st)
		}
	}
}

func (p *Poller) cycle(ctx context.Context, st *boardState) {
	log := p.log.With(logx.String("board", st.board), logx.String("cycle", uuid.NewString()[:8]))
	started := time.Now()

	p.mu.Lock()
	st.status.Cycles++
	st.status.LastCycle = started
	loaded, cp := st.loaded, st.status.Checkpoint
	p.mu.Unlock()

	if !loaded {
		v, err := p.cps.Load(ctx, st.board)
		if err != nil {
			p.fail(ctx, st, err)
			return
		}
		cp = v
		p.mu.Lock()
		st.loaded = true
		st.status.Checkpoint = cp
		p.mu.Unlock()
		log.Debug("checkpoint loaded", logx.String("checkpoint", string(cp)))
	}

	batch, err := p.src.Actions(ctx, st.board, cp)
	if err != nil {
		p.fail(ctx, st, err)
		return
	}
	res := Sequence(batch, cp)
	for _, a := range res.Fresh {
		log.Debug("action", logx.String("type", a.Type), logx.String("id", string(a.ID)))
		p.sink.Action(st.board, a)
	}

	p.mu.Lock()
	st.status.LastError = ""
	st.status.Published += uint64(len(res.Fresh))
	if res.Advanced {
		st.status.Checkpoint = res.Checkpoint
	}
	p.mu.Unlock()

	if !res.Advanced {
		log.Trace("no new actions", logx.Int("fetched", len(batch)), logx.Duration("took", time.Since(started)))
		return
	}
	// The in-memory checkpoint has already moved, so a failed save can
	// at worst replay this batch after a restart, never within this run.
	if err := p.cps.Save(ctx, st.board, res.Checkpoint); err != nil {
		p.fail(ctx, st, err)
	}
	p.sink.CheckpointAdvanced(st.board, res.Checkpoint)
	log.Debug("cycle done",
		logx.Int("fetched", len(batch)),
		logx.Int("published", len(res.Fresh)),
		logx.String("checkpoint", string(res.Checkpoint)),
		logx.Duration("took", time.Since(started)),
	)
}

func (p *Poller) fail(ctx context.Context, st *boardState, err error) {
	if ctx.Err() != nil {
		// shutdown, not a board failure
		return
	}
	p.mu.Lock()
	st.status.Errors++
	st.status.LastError = err.Error()
	p.mu.Unlock()
	p.sink.Error(err)
}
