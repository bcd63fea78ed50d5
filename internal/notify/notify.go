// Package notify turns board actions into chat notifications.
//
// Each Subscription pairs an action type with a predicate on the action
// payload and a formatter. Subscriptions are registered once on a
// feed.Dispatcher; their on/off switches and the user map can be swapped
// at runtime.
package notify

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"trellobot/internal/config"
	"trellobot/internal/feed"
	"trellobot/internal/trello"
	kit "trellobot/internal/transport"
	logx "trellobot/pkg/logx"
)

// Color is the accent used for every notification.
const Color = "#0ABDA0"

// Sender queues a notification for delivery.
type Sender interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Options struct {
	Target kit.Target
	// BotName opens the footer, e.g. "trellobot • Board [abc]".
	BotName string
	Events  config.EventsConfig
	Users   map[string]string
}

// Notifier formats matching actions and hands them to a Sender.
type Notifier struct {
	ctx    context.Context
	sender Sender
	log    logx.Logger
	target kit.Target
	subs   []Subscription

	botName atomic.Pointer[string]
	events  atomic.Pointer[config.EventsConfig]
	users   atomic.Pointer[map[string]string]
}

// New returns a Notifier; ctx bounds how long a listener waits for queue space.
func New(ctx context.Context, sender Sender, opts Options, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{
		ctx:    ctx,
		sender: sender,
		log:    log.With(logx.String("comp", "notify")),
		target: opts.Target,
		subs:   Subscriptions(),
	}
	n.SetBotName(opts.BotName)
	n.SetEvents(opts.Events)
	n.SetUsers(opts.Users)
	return n
}

func (n *Notifier) SetEvents(ev config.EventsConfig) { n.events.Store(&ev) }

func (n *Notifier) SetBotName(name string) {
	name = strings.TrimSpace(name)
	n.botName.Store(&name)
}

// SetUsers replaces the Trello username → chat user map.
func (n *Notifier) SetUsers(users map[string]string) {
	cp := make(map[string]string, len(users))
	for k, v := range users {
		if v = strings.TrimSpace(v); v != "" {
			cp[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	n.users.Store(&cp)
}

// Register attaches one listener per subscription. Disabled subscriptions
// stay registered so SetEvents can turn them on later.
func (n *Notifier) Register(d *feed.Dispatcher) {
	for _, sub := range n.subs {
		d.OnAction(sub.Type, func(board string, a trello.Action) {
			n.handle(sub, board, a)
		})
		n.log.Debug("trello event listener registered", logx.String("listener", sub.Name))
	}
}

func (n *Notifier) handle(sub Subscription, board string, a trello.Action) {
	ev := *n.events.Load()
	if sub.Enabled != nil && !sub.Enabled(ev) {
		return
	}
	e := newEvent(n, board, a)
	if sub.Match != nil && !sub.Match(e) {
		return
	}
	if card := e.card(); card != "" {
		n.log.Debug("trello event triggered", logx.String("listener", sub.Name), logx.String("card", card))
	} else {
		n.log.Debug("trello event triggered", logx.String("listener", sub.Name), logx.String("list", e.Get("list.id")))
	}

	msg := n.Message(sub, e)
	err := n.sender.Notify(n.ctx, kit.Notification{
		Key:     a.ID.String() + "|" + sub.Name,
		Target:  n.target,
		Message: msg,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		n.log.Error("notification not queued", logx.String("listener", sub.Name), logx.String("action", a.ID.String()), logx.Err(err))
	}
}

// Message formats e with sub and adds the common decoration: ID and USER
// fields, footer, timestamp and color.
func (n *Notifier) Message(sub Subscription, e Event) kit.Message {
	m := kit.Message{Color: Color, Timestamp: e.Date}
	sub.Format(e, &m)

	if card := e.card(); card != "" {
		m.URL = cardURL(card)
		m.AddField("ID", "["+card+"]("+cardURL(card)+")", true)
	}
	m.AddField("USER", n.memberString(e.MemberCreator), true)
	if av := e.MemberCreator.AvatarURL; av != "" {
		m.ThumbnailURL = strings.TrimSuffix(av, "/") + "/170.png"
	}

	foot := *n.botName.Load()
	board := e.Get("board.name")
	if short := e.Get("board.shortLink"); short != "" {
		board += " [" + short + "]"
	}
	if strings.TrimSpace(board) != "" {
		if foot != "" {
			foot += " • "
		}
		foot += board
	}
	m.Footer = foot
	return m
}

func cardURL(shortLink string) string { return "https://trello.com/c/" + shortLink }

// chatUser returns the mapped chat id for a Trello username.
func (n *Notifier) chatUser(username string) (string, bool) {
	id, ok := (*n.users.Load())[strings.ToLower(username)]
	return id, ok
}

// memberString links the Trello profile and mentions the mapped chat user.
func (n *Notifier) memberString(m trello.Member) string {
	name := m.FullName
	if name == "" {
		name = m.Username
	}
	s := "[" + name + "](https://trello.com/" + m.Username + ")"
	if id, ok := n.chatUser(m.Username); ok {
		s += " / " + kit.Mention(id, name)
	}
	return s
}

// displayName is the chat mention when mapped, else the Trello username.
func (n *Notifier) displayName(m trello.Member) string {
	if id, ok := n.chatUser(m.Username); ok {
		name := m.FullName
		if name == "" {
			name = m.Username
		}
		return kit.Mention(id, name)
	}
	return m.Username
}
