package trello

import (
	"encoding/json"
	"time"
)

// Member is a Trello account.
type Member struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Board is a tracked board. ShortLink is the id used in URLs and config.
type Board struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortLink string `json:"shortLink"`
	URL       string `json:"url,omitempty"`
	Closed    bool   `json:"closed,omitempty"`
}

// Action is one immutable recorded event on a board.
//
// Data is kept raw; its shape depends on Type and is read by the
// notification layer.
type Action struct {
	ID            ActionID        `json:"id"`
	Type          string          `json:"type"`
	Date          time.Time       `json:"date"`
	Data          json.RawMessage `json:"data"`
	MemberCreator Member          `json:"memberCreator"`
	Member        *Member         `json:"member,omitempty"`
}
