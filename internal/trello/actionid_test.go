package trello

import "testing"

func TestCompare(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b ActionID
		want int
	}{
		{"3", "5", -1},
		{"10", "9", 1},
		{"007", "7", 0},
		{"", "0", 0},
		{"", "1", -1},
		{"5f1a2b3c4d5e6f7081920a1b", "5f1a2b3c4d5e6f7081920a1c", -1},
		{"5F1A2B3C4D5E6F7081920A1B", "5f1a2b3c4d5e6f7081920a1b", 0},
		{"60000000000000000000000a", "5fffffffffffffffffffffff", 1},
	}
	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Fatalf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := Compare(tt.b, tt.a); got != -tt.want {
			t.Fatalf("Compare(%q, %q) = %d, want %d", tt.b, tt.a, got, -tt.want)
		}
	}
}

func TestMaxIDAndZero(t *testing.T) {
	t.Parallel()
	if got := MaxID("9", "10"); got != "10" {
		t.Fatalf("MaxID = %q", got)
	}
	if !ActionID("000").IsZero() || ActionID("a").IsZero() {
		t.Fatal("IsZero mismatch")
	}
}
