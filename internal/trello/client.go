package trello

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "trellobot/pkg/logx"
)

const (
	DefaultBaseURL   = "https://api.trello.com/1"
	DefaultTimeout   = 15 * time.Second
	DefaultPageLimit = 50
	MaxPageLimit     = 1000
	DefaultRate      = 10
	// MaxBackfill bounds how many actions one catch-up fetch collects.
	MaxBackfill = 10000

	maxResponseBodySize = 1 << 20 // 1MB
)

// connection pooling limits; every board polls the same host
const (
	defaultMaxIdleConns        = 32
	defaultMaxIdleConnsPerHost = 8
	defaultIdleConnTimeout     = 60 * time.Second
)

// Config controls a Client. Zero values take the defaults above.
type Config struct {
	BaseURL    string
	Key        string
	Token      string
	Timeout    time.Duration // per request
	PageLimit  int           // actions per request
	RatePerSec int           // <0 disables the limiter
	HTTPClient *http.Client
}

// Client reads members, boards and board actions from the Trello REST API.
//
// Every operation is a GET (Actions may page) with no retries; the poller decides what a
// failure means. Timeouts are applied per request through the context.
type Client struct {
	base    *url.URL
	key     string
	token   string
	timeout time.Duration
	limit   int
	lim     *rate.Limiter
	hc      *http.Client
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Key) == "" || strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("trello: key and token are required")
	}
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("trello: invalid base url %q", raw)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.PageLimit <= 0:
		cfg.PageLimit = DefaultPageLimit
	case cfg.PageLimit > MaxPageLimit:
		cfg.PageLimit = MaxPageLimit
	}
	var lim *rate.Limiter
	switch {
	case cfg.RatePerSec == 0:
		lim = rate.NewLimiter(rate.Limit(DefaultRate), DefaultRate)
	case cfg.RatePerSec > 0:
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			// no client timeout; deadlines come from the request context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:    base,
		key:     cfg.Key,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		limit:   cfg.PageLimit,
		lim:     lim,
		hc:      hc,
		log:     log.With(logx.String("comp", "trello")),
	}, nil
}

// Member fetches a member by id or username ("me" is the token owner).
func (c *Client) Member(ctx context.Context, id string) (Member, error) {
	if id == "" {
		id = "me"
	}
	var m Member
	if err := c.get(ctx, "member", "", "members/"+url.PathEscape(id), nil, &m); err != nil {
		return Member{}, err
	}
	if m.ID == "" {
		return Member{}, &FetchError{Op: "member", Kind: KindMalformed, Err: errors.New("member without id")}
	}
	return m, nil
}

// Boards lists the boards the member belongs to.
func (c *Client) Boards(ctx context.Context, memberID string) ([]Board, error) {
	if memberID == "" {
		memberID = "me"
	}
	q := url.Values{}
	q.Set("fields", "id,name,shortLink,url,closed")
	var out []Board
	if err := c.get(ctx, "boards", "", "members/"+url.PathEscape(memberID)+"/boards", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Actions fetches the board's actions newer than since, newest first as
// Trello returns them.
//
// Trello answers with the newest page only, so when a full page does not
// reach back to since, older pages are requested with before=<oldest id>
// until one comes back short or crosses since. A zero since fetches a single
// page: the first run publishes at most one page of history.
func (c *Client) Actions(ctx context.Context, boardID string, since ActionID) ([]Action, error) {
	out, err := c.actionsPage(ctx, boardID, since, "")
	if err != nil || since.IsZero() {
		return out, err
	}
	for page := out; len(page) == c.limit; {
		oldest := page[0].ID
		for _, a := range page[1:] {
			if a.ID.Less(oldest) {
				oldest = a.ID
			}
		}
		if !since.Less(oldest) {
			break
		}
		if len(out) >= MaxBackfill {
			c.log.Warn("trello backfill truncated; older actions skipped",
				logx.String("board", boardID),
				logx.String("since", string(since)),
				logx.String("oldest", string(oldest)),
				logx.Int("fetched", len(out)),
			)
			break
		}
		if page, err = c.actionsPage(ctx, boardID, since, oldest); err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	return out, nil
}

func (c *Client) actionsPage(ctx context.Context, boardID string, since, before ActionID) ([]Action, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.limit))
	if !since.IsZero() {
		q.Set("since", string(since))
	}
	if !before.IsZero() {
		q.Set("before", string(before))
	}
	var out []Action
	if err := c.get(ctx, "actions", boardID, "boards/"+url.PathEscape(boardID)+"/actions", q, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ID.IsZero() || out[i].Type == "" {
			return nil, &FetchError{Op: "actions", Board: boardID, Kind: KindMalformed,
				Err: fmt.Errorf("action %d has no id or type", i)}
		}
	}
	return out, nil
}

// Close releases idle connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.hc == nil {
		return
	}
	c.hc.CloseIdleConnections()
}

func (c *Client) get(ctx context.Context, op, board, path string, q url.Values, out any) error {
	fail := func(kind Kind, status int, err error) error {
		return &FetchError{Op: op, Board: board, Kind: kind, Status: status, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.lim != nil {
		if err := c.lim.Wait(ctx); err != nil {
			return fail(KindTransport, 0, err)
		}
	}

	if q == nil {
		q = url.Values{}
	}
	q.Set("key", c.key)
	q.Set("token", c.token)
	u := c.base.JoinPath(path)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fail(KindTransport, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		// *url.Error carries the full URL including credentials.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fail(KindTransport, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fail(KindTransport, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	c.log.Trace("trello request",
		logx.String("op", op),
		logx.String("board", board),
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail error
		if msg := strings.TrimSpace(string(body)); msg != "" {
			detail = errors.New(truncate(msg, 200))
		}
		return fail(KindService, resp.StatusCode, detail)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fail(KindMalformed, resp.StatusCode, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
