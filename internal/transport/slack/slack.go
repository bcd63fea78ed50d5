// Package slack delivers notifications as Slack message attachments.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	kit "trellobot/internal/transport"
	logx "trellobot/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides https://slack.com/api/ (tests).
	APIURL string
}

type Adapter struct {
	cfg    Config
	log    logx.Logger
	client *slack.Client
	me     kit.Identity
}

var _ kit.Adapter = (*Adapter)(nil)

// New logs in with auth.test so a bad token fails at startup.
func New(ctx context.Context, cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("slack token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	c := slack.New(cfg.Token, opts...)
	auth, err := c.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack login: %w", err)
	}
	a := &Adapter{cfg: cfg, log: log, client: c}
	a.me = kit.Identity{ID: auth.UserID, DisplayName: auth.User}
	return a, nil
}

func (a *Adapter) Name() string { return "slack" }

func (a *Adapter) Self() kit.Identity { return a.me }

// Start is a no-op; the adapter only uses the Web API.
func (a *Adapter) Start(context.Context) error { return nil }

func (a *Adapter) Stop(context.Context) error { return nil }

func (a *Adapter) Resolve(ctx context.Context, to kit.Target) (kit.ChannelInfo, error) {
	id := strings.TrimSpace(to.Channel)
	if id == "" {
		return kit.ChannelInfo{}, errors.New("slack: empty channel")
	}
	ch, err := a.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: id})
	if err != nil {
		return kit.ChannelInfo{}, fmt.Errorf("slack: resolve %s: %w", id, mapError(err))
	}
	return kit.ChannelInfo{ID: ch.ID, Name: ch.Name}, nil
}

func (a *Adapter) Send(ctx context.Context, to kit.Target, msg kit.Message) error {
	att := attachment(msg)
	_, _, err := a.client.PostMessageContext(ctx, to.Channel,
		slack.MsgOptionAttachments(att),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	return mapError(err)
}

func (a *Adapter) SendText(ctx context.Context, to kit.Target, text string) error {
	_, _, err := a.client.PostMessageContext(ctx, to.Channel, slack.MsgOptionText(text, true))
	return mapError(err)
}

func attachment(msg kit.Message) slack.Attachment {
	att := slack.Attachment{
		Color:      msg.Color,
		Title:      kit.PlainText(msg.Title),
		TitleLink:  msg.URL,
		Fallback:   kit.PlainText(msg.Title),
		Footer:     msg.Footer,
		ThumbURL:   msg.ThumbnailURL,
		MarkdownIn: []string{"fields", "text"},
	}
	if !msg.Timestamp.IsZero() {
		att.Ts = json.Number(strconv.FormatInt(msg.Timestamp.Unix(), 10))
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slack.AttachmentField{
			Title: f.Name,
			Value: renderMrkdwn(f.Value),
			Short: f.Inline,
		})
	}
	return att
}

// renderMrkdwn converts inline markup to Slack mrkdwn.
func renderMrkdwn(s string) string {
	var b strings.Builder
	for _, sp := range kit.ParseInline(s) {
		text := escape(sp.Text)
		switch {
		case sp.Mention != "":
			b.WriteString(renderMention(sp))
		case sp.URL != "":
			b.WriteString("<" + sp.URL + "|" + text + ">")
		case sp.Emphasis:
			b.WriteString("*" + text + "*")
		default:
			b.WriteString(text)
		}
	}
	return b.String()
}

// renderMention: member ids (U…/W…) become native mentions, handles stay text.
func renderMention(sp kit.Span) string {
	id := sp.Mention
	if len(id) > 1 && (id[0] == 'U' || id[0] == 'W') && strings.ToUpper(id) == id {
		return "<@" + id + ">"
	}
	if strings.HasPrefix(id, "@") {
		return escape(id)
	}
	return escape(sp.Text)
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return escaper.Replace(s) }

// mapError turns Slack rate limiting into a retry hint for the notifier.
func mapError(err error) error {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return &kit.RetryAfterError{After: rl.RetryAfter, Err: err}
	}
	return err
}
