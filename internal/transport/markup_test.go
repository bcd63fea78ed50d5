package transport

import (
	"reflect"
	"testing"
)

func TestParseInline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []Span
	}{
		{name: "plain", in: "hello", want: []Span{{Text: "hello"}}},
		{
			name: "emphasis",
			in:   "moved to __Done__!",
			want: []Span{{Text: "moved to "}, {Text: "Done", Emphasis: true}, {Text: "!"}},
		},
		{
			name: "link",
			in:   "[abc](https://trello.com/c/abc) / @bob",
			want: []Span{{Text: "abc", URL: "https://trello.com/c/abc"}, {Text: " / @bob"}},
		},
		{name: "unterminated emphasis", in: "a __b", want: []Span{{Text: "a __b"}}},
		{name: "broken link", in: "[x](no close", want: []Span{{Text: "[x](no close"}}},
		{
			name: "mention",
			in:   "Ann / " + Mention("U123", "Ann"),
			want: []Span{{Text: "Ann / "}, {Text: "Ann", Mention: "U123"}},
		},
		{name: "not a mention", in: "a <@ b>", want: []Span{{Text: "a <@ b>"}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := ParseInline(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseInline(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()
	got := PlainText("Card __abc__ by [Ann](https://trello.com/ann)")
	want := "Card abc by Ann (https://trello.com/ann)"
	if got != want {
		t.Fatalf("PlainText = %q, want %q", got, want)
	}
	if got := PlainText("by " + Mention("@ann", "Ann")); got != "by @ann" {
		t.Fatalf("PlainText(mention) = %q", got)
	}
}
