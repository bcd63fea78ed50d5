package transport

import (
	"context"
	"fmt"
	"time"
)

// Target addresses a chat destination.
//
// Channel is adapter-specific: a numeric chat id for Telegram, a channel id
// (C0123...) for Slack. ThreadID is the Telegram forum topic (0 if none).
type Target struct {
	Channel  string
	ThreadID int
}

func (t Target) IsZero() bool { return t.Channel == "" }

// Field is a labelled value inside a Message.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a transport-neutral rich notification.
//
// Title and field values may carry inline markup (see ParseInline):
// [text](url) links and __emphasis__. Adapters render it natively.
type Message struct {
	Title        string
	URL          string
	Fields       []Field
	Footer       string
	Timestamp    time.Time
	Color        string // "#RRGGBB"
	ThumbnailURL string
}

// AddField appends a field and returns the message for chaining.
func (m *Message) AddField(name, value string, inline bool) *Message {
	m.Fields = append(m.Fields, Field{Name: name, Value: value, Inline: inline})
	return m
}

// Notification is one queued delivery.
type Notification struct {
	// Key identifies the logical notification for dedup (e.g. action id + subscription).
	// Empty disables dedup.
	Key      string
	Priority int // 0 low.. 10 high
	Target   Target
	Message  Message
}

// ChannelInfo describes a resolved destination.
type ChannelInfo struct {
	ID   string
	Name string
}

// Identity is the bot account as seen by the chat platform.
type Identity struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

type Adapter interface {
	Name() string

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Self returns the bot identity (valid after Start).
	Self() Identity
	// Resolve checks that the target exists and is reachable.
	Resolve(ctx context.Context, to Target) (ChannelInfo, error)

	Send(ctx context.Context, to Target, msg Message) error
	SendText(ctx context.Context, to Target, text string) error
}

// StatusFunc renders a short plain-text status report for chat commands.
type StatusFunc func() string

// RetryAfterError wraps a send failure for which the platform asked the
// caller to wait (HTTP 429 / flood control).
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.After, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }
