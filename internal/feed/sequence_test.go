package feed

import (
	"math/rand"
	"strconv"
	"testing"

	"trellobot/internal/trello"
)

func actions(ids ...string) []trello.Action {
	out := make([]trello.Action, 0, len(ids))
	for _, id := range ids {
		out = append(out, trello.Action{ID: trello.ActionID(id), Type: "createCard"})
	}
	return out
}

func ids(as []trello.Action) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, string(a.ID))
	}
	return out
}

func TestSequenceExamples(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		batch    []string
		cp       string
		want     []string
		wantCP   string
		advanced bool
	}{
		{name: "reorders", batch: []string{"5", "3", "7"}, cp: "0", want: []string{"3", "5", "7"}, wantCP: "7", advanced: true},
		{name: "all seen", batch: []string{"5", "3"}, cp: "5", want: nil, wantCP: "5"},
		{name: "empty", batch: nil, cp: "10", want: nil, wantCP: "10"},
		{name: "first run", batch: []string{"2", "1"}, cp: "", want: []string{"1", "2"}, wantCP: "2", advanced: true},
		{name: "partial", batch: []string{"9", "4", "12"}, cp: "9", want: []string{"12"}, wantCP: "12", advanced: true},
		{name: "duplicates", batch: []string{"8", "6", "8"}, cp: "0", want: []string{"6", "8"}, wantCP: "8", advanced: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Sequence(actions(tt.batch...), trello.ActionID(tt.cp))
			got := ids(res.Fresh)
			if len(got) != len(tt.want) {
				t.Fatalf("Fresh = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Fresh = %v, want %v", got, tt.want)
				}
			}
			if string(res.Checkpoint) != tt.wantCP || res.Advanced != tt.advanced {
				t.Fatalf("Checkpoint = %q advanced=%v, want %q advanced=%v", res.Checkpoint, res.Advanced, tt.wantCP, tt.advanced)
			}
		})
	}
}

func TestSequenceProperties(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 500; round++ {
		n := rng.Intn(20)
		batch := make([]string, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, strconv.Itoa(rng.Intn(100)))
		}
		cp := trello.ActionID(strconv.Itoa(rng.Intn(100)))
		in := actions(batch...)

		res := Sequence(in, cp)
		for i, a := range res.Fresh {
			if trello.Compare(a.ID, cp) <= 0 {
				t.Fatalf("round %d: emitted %q <= checkpoint %q", round, a.ID, cp)
			}
			if i > 0 && trello.Compare(res.Fresh[i-1].ID, a.ID) >= 0 {
				t.Fatalf("round %d: output not strictly ascending: %v", round, ids(res.Fresh))
			}
		}
		if trello.Compare(res.Checkpoint, cp) < 0 {
			t.Fatalf("round %d: checkpoint went backwards %q -> %q", round, cp, res.Checkpoint)
		}
		again := Sequence(in, res.Checkpoint)
		if len(again.Fresh) != 0 || again.Advanced {
			t.Fatalf("round %d: second pass emitted %v", round, ids(again.Fresh))
		}
		for i := range in {
			if string(in[i].ID) != batch[i] {
				t.Fatalf("round %d: input batch mutated", round)
			}
		}
	}
}
