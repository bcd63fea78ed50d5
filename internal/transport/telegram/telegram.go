// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "trellobot/internal/runtime/supervisor"
	kit "trellobot/internal/transport"
	logx "trellobot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Status answers /status in any chat the bot is in. Nil disables
	// polling for updates entirely; the bot then only sends.
	Status kit.StatusFunc
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
	me  kit.Identity

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

var _ kit.Adapter = (*Adapter)(nil)

// recipient addresses a chat by numeric id or "@username".
type recipient string

func (r recipient) Recipient() string { return string(r) }

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	if me := b.Me; me != nil {
		name := me.Username
		if name == "" {
			name = me.FirstName
		}
		a.me = kit.Identity{ID: strconv.FormatInt(me.ID, 10), DisplayName: name}
	}
	return a, nil
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) Self() kit.Identity { return a.me }

func (a *Adapter) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running || a.cfg.Status == nil {
		return nil
	}
	a.running = true

	status := a.cfg.Status
	a.bot.Handle("/status", func(c tele.Context) error {
		return c.Send(status())
	})

	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram"))),
		rtsup.WithCancelOnError(false),
	)
	a.sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until Stop; restart it if it returns early.
	a.sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()
	go a.bot.Stop()

	// Long-poll may still be waiting; don't hold shutdown for it.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) Resolve(ctx context.Context, to kit.Target) (kit.ChannelInfo, error) {
	if err := ctx.Err(); err != nil {
		return kit.ChannelInfo{}, err
	}
	ch := strings.TrimSpace(to.Channel)
	if ch == "" {
		return kit.ChannelInfo{}, errors.New("telegram: empty channel")
	}
	var (
		chat *tele.Chat
		err  error
	)
	if id, perr := strconv.ParseInt(ch, 10, 64); perr == nil {
		chat, err = a.bot.ChatByID(id)
	} else {
		chat, err = a.bot.ChatByUsername(ch)
	}
	if err != nil {
		return kit.ChannelInfo{}, fmt.Errorf("telegram: resolve %s: %w", ch, err)
	}
	name := chat.Title
	if name == "" {
		name = chat.Username
	}
	return kit.ChannelInfo{ID: strconv.FormatInt(chat.ID, 10), Name: name}, nil
}

func (a *Adapter) Send(ctx context.Context, to kit.Target, msg kit.Message) error {
	return a.send(ctx, to, renderHTML(msg), tele.ModeHTML)
}

func (a *Adapter) SendText(ctx context.Context, to kit.Target, text string) error {
	return a.send(ctx, to, text, tele.ModeDefault)
}

func (a *Adapter) send(ctx context.Context, to kit.Target, text string, mode tele.ParseMode) error {
	chunks := splitText(text, textLimit)
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		opt := &tele.SendOptions{
			ParseMode:             mode,
			DisableWebPagePreview: true,
			ThreadID:              to.ThreadID,
		}
		if _, err := a.bot.Send(recipient(to.Channel), chunk, opt); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// mapError turns flood control into a retry hint for the notifier.
func mapError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return &kit.RetryAfterError{After: time.Duration(flood.RetryAfter) * time.Second, Err: err}
	}
	return err
}
