package trello

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "trellobot/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/1", Key: "k", Token: "secret-token", RatePerSec: -1, Timeout: time.Second}, logx.Logger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestActionsSendsSinceAndCredentials(t *testing.T) {
	t.Parallel()
	var gotPath, gotSince, gotKey, gotToken, gotLimit string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSince = r.URL.Query().Get("since")
		gotKey = r.URL.Query().Get("key")
		gotToken = r.URL.Query().Get("token")
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`[
			{"id":"7","type":"createCard","date":"2024-01-02T03:04:05.000Z","data":{"card":{"name":"x"}},"memberCreator":{"id":"m","username":"ann","fullName":"Ann"}},
			{"id":"5","type":"commentCard","date":"2024-01-02T03:00:00.000Z","data":{},"memberCreator":{"id":"m","username":"ann","fullName":"Ann"}}
		]`))
	})

	got, err := c.Actions(context.Background(), "abc", "3")
	if err != nil {
		t.Fatalf("Actions: %v", err)
	}
	if gotPath != "/1/boards/abc/actions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotSince != "3" || gotKey != "k" || gotToken != "secret-token" || gotLimit != "50" {
		t.Fatalf("query since=%q key=%q token=%q limit=%q", gotSince, gotKey, gotToken, gotLimit)
	}
	if len(got) != 2 || got[0].ID != "7" || got[0].MemberCreator.Username != "ann" {
		t.Fatalf("unexpected actions: %+v", got)
	}
	if got[0].Date.IsZero() {
		t.Fatal("date not decoded")
	}
}

func TestActionsOmitsZeroSince(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["since"]; ok {
			t.Errorf("since should be omitted, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[]`))
	})
	got, err := c.Actions(context.Background(), "abc", "")
	if err != nil || len(got) != 0 {
		t.Fatalf("Actions = %v, %v", got, err)
	}
}

// boardHistory serves actions 1..n the way Trello does: newest first,
// bounded by since/before (exclusive), truncated to limit.
func boardHistory(n int, requests *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		since, _ := strconv.Atoi(q.Get("since"))
		before := n + 1
		if v := q.Get("before"); v != "" {
			before, _ = strconv.Atoi(v)
		}
		var parts []string
		for id := before - 1; id > since && len(parts) < limit; id-- {
			parts = append(parts, `{"id":"`+strconv.Itoa(id)+`","type":"createCard","data":{}}`)
		}
		_, _ = w.Write([]byte("[" + strings.Join(parts, ",") + "]"))
	}
}

func TestActionsPagesBackToSince(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	c := newTestClient(t, boardHistory(120, &requests))

	got, err := c.Actions(context.Background(), "abc", "10")
	if err != nil {
		t.Fatalf("Actions: %v", err)
	}
	seen := map[ActionID]bool{}
	for _, a := range got {
		if seen[a.ID] {
			t.Fatalf("duplicate action %s", a.ID)
		}
		seen[a.ID] = true
	}
	if len(got) != 110 {
		t.Fatalf("got %d actions, want 110 (11..120)", len(got))
	}
	for id := 11; id <= 120; id++ {
		if !seen[ActionID(strconv.Itoa(id))] {
			t.Fatalf("action %d missing", id)
		}
	}
	if n := requests.Load(); n != 3 {
		t.Fatalf("requests = %d, want 3", n)
	}
}

func TestActionsStopsAtExactPageBoundary(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	c := newTestClient(t, boardHistory(100, &requests))

	got, err := c.Actions(context.Background(), "abc", "50")
	if err != nil || len(got) != 50 {
		t.Fatalf("Actions = %d actions, %v", len(got), err)
	}
	// a full page may still have older actions; the next page comes back empty
	if n := requests.Load(); n != 2 {
		t.Fatalf("requests = %d, want 2", n)
	}
}

func TestActionsFirstRunIsOnePage(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	c := newTestClient(t, boardHistory(120, &requests))

	got, err := c.Actions(context.Background(), "abc", "")
	if err != nil {
		t.Fatalf("Actions: %v", err)
	}
	if len(got) != 50 || got[0].ID != "120" || requests.Load() != 1 {
		t.Fatalf("got %d actions starting at %s in %d requests", len(got), got[0].ID, requests.Load())
	}
}

func TestFetchErrorKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		sentinel error
		kind     Kind
	}{
		{
			name: "service",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "invalid token", http.StatusUnauthorized)
			},
			sentinel: ErrService,
			kind:     KindService,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"not":"a list"`))
			},
			sentinel: ErrMalformed,
			kind:     KindMalformed,
		},
		{
			name: "action without id",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`[{"type":"createCard"}]`))
			},
			sentinel: ErrMalformed,
			kind:     KindMalformed,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(3 * time.Second):
				}
			},
			sentinel: ErrTransport,
			kind:     KindTransport,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, tt.handler)
			c.timeout = 100 * time.Millisecond
			_, err := c.Actions(context.Background(), "abc", "1")
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("err = %v, want %v", err, tt.sentinel)
			}
			var fe *FetchError
			if !errors.As(err, &fe) || fe.Kind != tt.kind || fe.Board != "abc" {
				t.Fatalf("FetchError = %+v", fe)
			}
			if strings.Contains(err.Error(), "secret-token") {
				t.Fatalf("error leaks token: %v", err)
			}
		})
	}
}

func TestMemberDefaultsToMe(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/members/me" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"m1","username":"bot","fullName":"Bot"}`))
	})
	m, err := c.Member(context.Background(), "")
	if err != nil || m.Username != "bot" {
		t.Fatalf("Member = %+v, %v", m, err)
	}
}

func TestBoardsListsMemberBoards(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/members/ann/boards" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if !strings.Contains(r.URL.Query().Get("fields"), "closed") {
			t.Errorf("fields = %q", r.URL.Query().Get("fields"))
		}
		_, _ = w.Write([]byte(`[{"id":"b1","name":"Roadmap","shortLink":"brd"},{"id":"b2","name":"Old","closed":true}]`))
	})
	boards, err := c.Boards(context.Background(), "ann")
	if err != nil {
		t.Fatalf("Boards: %v", err)
	}
	if len(boards) != 2 || boards[0].ShortLink != "brd" || !boards[1].Closed {
		t.Fatalf("Boards = %+v", boards)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Key: "k"}, logx.Logger{}); err == nil {
		t.Fatal("expected error without token")
	}
}
