package feed

import (
	"fmt"
	"runtime/debug"
	"sync"

	"trellobot/internal/eventbus"
	"trellobot/internal/trello"
	logx "trellobot/pkg/logx"
)

// Sink receives the typed events produced by the Poller.
type Sink interface {
	Ready(me trello.Member)
	Error(err error)
	Action(board string, a trello.Action)
	CheckpointAdvanced(board string, id trello.ActionID)
}

type (
	ActionFunc     func(board string, a trello.Action)
	ReadyFunc      func(me trello.Member)
	ErrorFunc      func(err error)
	CheckpointFunc func(board string, id trello.ActionID)
)

// Event types mirrored onto the eventbus.
const (
	EventReady      = "feed.ready"
	EventError      = "feed.error"
	EventAction     = "feed.action"
	EventCheckpoint = "feed.checkpoint"
)

// ActionEvent is the eventbus payload for EventAction.
type ActionEvent struct {
	Board  string
	Action trello.Action
}

// CheckpointEvent is the eventbus payload for EventCheckpoint.
type CheckpointEvent struct {
	Board string
	ID    trello.ActionID
}

// Dispatcher is the Sink used in production: it fans events out to
// registered listeners synchronously, in registration order.
//
// A panicking listener is recovered and reported through the error listeners;
// the remaining listeners still run.
type Dispatcher struct {
	mu         sync.RWMutex
	byType     map[string][]ActionFunc
	anyAction  []ActionFunc
	ready      []ReadyFunc
	errs       []ErrorFunc
	checkpoint []CheckpointFunc

	bus eventbus.Bus
	log logx.Logger
}

// NewDispatcher returns an empty dispatcher. bus may be nil.
func NewDispatcher(bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		byType: map[string][]ActionFunc{},
		bus:    bus,
		log:    log.With(logx.String("comp", "feed.dispatch")),
	}
}

func (d *Dispatcher) OnAction(typ string, fn ActionFunc) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.byType[typ] = append(d.byType[typ], fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnAnyAction(fn ActionFunc) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.anyAction = append(d.anyAction, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnReady(fn ReadyFunc) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.ready = append(d.ready, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnError(fn ErrorFunc) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.errs = append(d.errs, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnCheckpoint(fn CheckpointFunc) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.checkpoint = append(d.checkpoint, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) Ready(me trello.Member) {
	d.publish(EventReady, me)
	d.mu.RLock()
	fns := d.ready
	d.mu.RUnlock()
	for _, fn := range fns {
		d.safe("ready", func() { fn(me) })
	}
}

func (d *Dispatcher) Error(err error) {
	if err == nil {
		return
	}
	d.publish(EventError, err)
	d.mu.RLock()
	fns := d.errs
	d.mu.RUnlock()
	for _, fn := range fns {
		func() {
			// an error listener that panics is only logged, never re-reported
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("error listener panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			fn(err)
		}()
	}
}

func (d *Dispatcher) Action(board string, a trello.Action) {
	d.publish(EventAction, ActionEvent{Board: board, Action: a})
	d.mu.RLock()
	typed := d.byType[a.Type]
	anyFns := d.anyAction
	d.mu.RUnlock()

	if len(typed) == 0 && len(anyFns) == 0 {
		d.log.Trace("no listener for action", logx.String("board", board), logx.String("type", a.Type), logx.String("id", string(a.ID)))
		return
	}
	for _, fn := range typed {
		d.safe(a.Type, func() { fn(board, a) })
	}
	for _, fn := range anyFns {
		d.safe("*", func() { fn(board, a) })
	}
}

func (d *Dispatcher) CheckpointAdvanced(board string, id trello.ActionID) {
	d.publish(EventCheckpoint, CheckpointEvent{Board: board, ID: id})
	d.mu.RLock()
	fns := d.checkpoint
	d.mu.RUnlock()
	for _, fn := range fns {
		d.safe("checkpoint", func() { fn(board, id) })
	}
}

func (d *Dispatcher) safe(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("listener panicked", logx.String("event", kind), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			d.Error(fmt.Errorf("listener %s panicked: %v", kind, r))
		}
	}()
	fn()
}

func (d *Dispatcher) publish(typ string, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
