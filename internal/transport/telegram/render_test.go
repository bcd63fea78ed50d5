package telegram

import (
	"strings"
	"testing"
	"time"

	kit "trellobot/internal/transport"
)

func TestRenderHTML(t *testing.T) {
	t.Parallel()
	m := kit.Message{
		Title:     "Card __A&B__ moved",
		URL:       "https://trello.com/c/abc",
		Footer:    "trellobot • Board [xyz]",
		Timestamp: time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC),
	}
	m.AddField("ID", "[abc](https://trello.com/c/abc)", true)
	m.AddField("USER", "[Ann](https://trello.com/ann) / "+kit.Mention("42", "Ann"), true)
	m.AddField("HANDLE", kit.Mention("@ann_tg", "Ann"), true)

	got := renderHTML(m)
	for _, want := range []string{
		`<a href="https://trello.com/c/abc"><b>Card <u>A&amp;B</u> moved</b></a>`,
		`<b>ID</b>: <a href="https://trello.com/c/abc">abc</a>`,
		`<a href="tg://user?id=42">Ann</a>`,
		`<b>HANDLE</b>: @ann_tg`,
		`<i>trellobot • Board [xyz] · 02 Jan 2024 15:04 UTC</i>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q\n%s", want, got)
		}
	}
}

func TestRenderEscapesPlainText(t *testing.T) {
	t.Parallel()
	got := renderHTML(kit.Message{Title: "<script>"})
	if got != "<b>&lt;script&gt;</b>" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  int
	}{
		{name: "short", in: "hello", limit: 10, want: 1},
		{name: "newlines", in: strings.Repeat("line of text\n", 20), limit: 50, want: 7},
		{name: "no newline", in: strings.Repeat("x", 25), limit: 10, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks := splitText(tt.in, tt.limit)
			if len(chunks) != tt.want {
				t.Fatalf("chunks = %d, want %d: %q", len(chunks), tt.want, chunks)
			}
			for _, c := range chunks {
				if n := len([]rune(c)); n > tt.limit {
					t.Fatalf("chunk too long (%d): %q", n, c)
				}
			}
		})
	}
}

func TestSplitTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 8) + "<b>bold</b>"
	for _, c := range splitText(in, 10) {
		if strings.Count(c, "<") != strings.Count(c, ">") {
			t.Fatalf("tag cut in chunk %q", c)
		}
	}
}
