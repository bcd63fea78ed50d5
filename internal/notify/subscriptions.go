package notify

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"trellobot/internal/config"
	"trellobot/internal/trello"
	kit "trellobot/internal/transport"
)

// Subscription announces one kind of board action.
type Subscription struct {
	// Name is unique and ends up in dedup keys and logs, e.g. "updateCard (name)".
	Name    string
	Type    string
	Enabled func(ev config.EventsConfig) bool
	// Match filters actions of Type; nil matches all.
	Match  func(e Event) bool
	Format func(e Event, m *kit.Message)
}

// Event is an action with helpers for its data payload.
type Event struct {
	trello.Action
	Board string
	data  gjson.Result
	n     *Notifier
}

func newEvent(n *Notifier, board string, a trello.Action) Event {
	return Event{Action: a, Board: board, data: gjson.ParseBytes(a.Data), n: n}
}

// Get reads a data field by gjson path ("card.name", "old.pos").
func (e Event) Get(path string) string { return e.data.Get(path).String() }

// Has reports whether data contains path, even with a null or false value.
func (e Event) Has(path string) bool { return e.data.Get(path).Exists() }

func (e Event) card() string { return e.Get("card.shortLink") }

// Subscriptions lists every announcement, in registration order.
func Subscriptions() []Subscription {
	return []Subscription{
		{
			Name: "createCard", Type: "createCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.CreateCard },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("A new card has been added to __%s__!", e.Get("list.name"))
				m.AddField("CARD", e.Get("card.name"), false)
				if desc := e.Get("card.desc"); desc != "" {
					m.AddField("DESCRIPTION", desc, false)
				}
			},
		},
		{
			Name: "updateCard (name)", Type: "updateCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateCard.Name },
			Match:   func(e Event) bool { return e.Has("old.name") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Name updated for card __%s__!", e.card())
				m.AddField("OLD NAME", e.Get("old.name"), false)
				m.AddField("NEW NAME", e.Get("card.name"), false)
			},
		},
		{
			Name: "updateCard (description)", Type: "updateCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateCard.Description },
			Match:   func(e Event) bool { return e.Has("old.desc") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Description updated for card __%s__!", e.card())
				m.AddField("CARD", e.Get("card.name"), false)
				m.AddField("DESCRIPTION", e.Get("card.desc"), false)
			},
		},
		{
			Name: "updateCard (position)", Type: "updateCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateCard.Position },
			Match:   func(e Event) bool { return e.Has("old.pos") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Position updated for card __%s__!", e.card())
				m.AddField("CARD", e.Get("card.name"), false)
			},
		},
		{
			Name: "updateCard (due date)", Type: "updateCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateCard.DueDate },
			Match:   func(e Event) bool { return e.Has("old.due") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Due date updated for card __%s__!", e.card())
				m.AddField("CARD", e.Get("card.name"), false)
				if old := e.Get("old.due"); old != "" {
					m.AddField("OLD DUE DATE", formatDue(old), false)
				}
				due := "N/A"
				if v := e.Get("card.due"); v != "" {
					due = formatDue(v)
				}
				m.AddField("NEW DUE DATE", due, false)
			},
		},
		{
			Name: "updateCard (list)", Type: "updateCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateCard.List },
			Match:   func(e Event) bool { return e.Has("listBefore") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Card __%s__ has been moved to __%s__!", e.card(), e.Get("listAfter.name"))
				m.AddField("CARD", e.Get("card.name"), false)
				m.AddField("OLD LIST", e.Get("listBefore.name"), false)
				m.AddField("NEW LIST", e.Get("listAfter.name"), false)
			},
		},
		{
			Name: "updateCard (archive)", Type: "updateCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateCard.Archive },
			Match:   func(e Event) bool { return e.Has("old.closed") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Card __%s__ has been %s!", e.card(), archived(e))
				m.AddField("CARD", e.Get("card.name"), false)
			},
		},
		{
			Name: "deleteCard", Type: "deleteCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.DeleteCard },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Card __%s__ has been deleted!", e.card())
				m.AddField("LIST", e.Get("list.name"), false)
			},
		},
		{
			Name: "commentCard", Type: "commentCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.CommentCard },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("A new comment has been added to card __%s__!", e.card())
				m.AddField("CARD", e.Get("card.name"), false)
				label := "COMMENT"
				if e.Has("dateLastEdited") {
					label = "COMMENT (edited)"
				}
				m.AddField(label, e.Get("text"), false)
			},
		},
		{
			Name: "addMemberToCard", Type: "addMemberToCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.AddMemberToCard },
			Format: func(e Event, m *kit.Message) {
				who := e.n.displayName(e.member())
				if e.selfAction() {
					m.Title = fmt.Sprintf("Card __%s__ has been claimed by %s!", e.card(), who)
				} else {
					m.Title = fmt.Sprintf("Card __%s__ has been assigned to %s!", e.card(), who)
				}
				m.AddField("CARD", e.Get("card.name"), false)
				m.AddField("MEMBER", e.n.memberString(e.member()), false)
			},
		},
		{
			Name: "removeMemberFromCard", Type: "removeMemberFromCard",
			Enabled: func(ev config.EventsConfig) bool { return ev.RemoveMemberFromCard },
			Format: func(e Event, m *kit.Message) {
				who := e.n.displayName(e.member())
				if e.selfAction() {
					m.Title = fmt.Sprintf("%s has abandoned card __%s__!", who, e.card())
				} else {
					m.Title = fmt.Sprintf("%s has been removed from card __%s__!", who, e.card())
				}
				m.AddField("CARD", e.Get("card.name"), false)
				m.AddField("MEMBER", e.n.memberString(e.member()), false)
			},
		},
		{
			Name: "createList", Type: "createList",
			Enabled: func(ev config.EventsConfig) bool { return ev.CreateList },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("A new list has been added to __%s__!", e.Get("board.name"))
				m.AddField("LIST", e.Get("list.name"), false)
			},
		},
		{
			Name: "updateList (name)", Type: "updateList",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateList.Name },
			Match:   func(e Event) bool { return e.Has("old.name") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Name updated for list __%s__!", e.Get("list.name"))
				m.AddField("OLD NAME", e.Get("old.name"), false)
				m.AddField("NEW NAME", e.Get("list.name"), false)
			},
		},
		{
			Name: "updateList (position)", Type: "updateList",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateList.Position },
			Match:   func(e Event) bool { return e.Has("old.pos") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("Position updated for list __%s__!", e.Get("list.name"))
			},
		},
		{
			Name: "updateList (archive)", Type: "updateList",
			Enabled: func(ev config.EventsConfig) bool { return ev.UpdateList.Archive },
			Match:   func(e Event) bool { return e.Has("old.closed") },
			Format: func(e Event, m *kit.Message) {
				m.Title = fmt.Sprintf("List __%s__ has been %s!", e.Get("list.name"), archived(e))
			},
		},
	}
}

// member is the member an action targets, falling back to data.member.
func (e Event) member() trello.Member {
	if e.Member != nil {
		return *e.Member
	}
	return trello.Member{
		ID:       e.Get("member.id"),
		Username: e.Get("member.username"),
		FullName: e.Get("member.name"),
	}
}

func (e Event) selfAction() bool {
	m := e.member()
	if m.ID != "" && e.MemberCreator.ID != "" {
		return m.ID == e.MemberCreator.ID
	}
	return m.Username == e.MemberCreator.Username
}

// archived: old.closed holds the state before the change.
func archived(e Event) string {
	if e.data.Get("old.closed").Bool() {
		return "unarchived"
	}
	return "archived"
}

const dueLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

func formatDue(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(dueLayout)
}
