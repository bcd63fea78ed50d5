package trello

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure. All kinds are non-fatal to the poller.
type Kind int

const (
	KindTransport Kind = iota + 1 // network, DNS, timeout
	KindService                   // non-2xx response
	KindMalformed                 // unexpected payload shape
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindService:
		return "service"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

var (
	ErrTransport = errors.New("trello: transport error")
	ErrService   = errors.New("trello: service error")
	ErrMalformed = errors.New("trello: malformed response")
)

// FetchError is returned by every Client operation.
type FetchError struct {
	Op     string // "member", "boards", "actions"
	Board  string // empty unless Op == "actions"
	Kind   Kind
	Status int // HTTP status for KindService
	Err    error
}

func (e *FetchError) Error() string {
	where := e.Op
	if e.Board != "" {
		where += " board=" + e.Board
	}
	switch {
	case e.Kind == KindService && e.Err != nil:
		return fmt.Sprintf("trello %s: %s error (http %d): %v", where, e.Kind, e.Status, e.Err)
	case e.Kind == KindService:
		return fmt.Sprintf("trello %s: %s error (http %d)", where, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("trello %s: %s error: %v", where, e.Kind, e.Err)
	default:
		return fmt.Sprintf("trello %s: %s error", where, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so callers can write errors.Is(err, trello.ErrService).
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrService:
		return e.Kind == KindService
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}
