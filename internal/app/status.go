package app

import (
	"fmt"
	"strings"
	"time"

	"trellobot/internal/feed"
	"trellobot/internal/maintenance"
	"trellobot/internal/notifier"
)

// renderStatus is the plain-text /status reply.
func renderStatus(now time.Time, started time.Time, boards []feed.BoardStatus, ns notifier.Stats, ms maintenance.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trellobot up %s\n", now.Sub(started).Round(time.Second))

	b.WriteString("\nBoards\n")
	if len(boards) == 0 {
		b.WriteString("• none\n")
	}
	for _, st := range boards {
		cp := st.Checkpoint.String()
		if cp == "" {
			cp = "-"
		}
		fmt.Fprintf(&b, "• %s: checkpoint %s, last cycle %s, %d published, %d errors\n",
			st.Board, cp, age(now, st.LastCycle), st.Published, st.Errors)
		if st.LastError != "" {
			fmt.Fprintf(&b, "  last error: %s\n", truncate(st.LastError, 160))
		}
	}

	fmt.Fprintf(&b, "\nNotifications: %d sent, %d pending, %d deduped, %d failed\n",
		ns.Sent, ns.Pending, ns.Deduped, ns.Failed)

	fmt.Fprintf(&b, "Dedup prune: %s", ms.Schedule)
	if !ms.LastRun.IsZero() {
		fmt.Fprintf(&b, ", last %s (%d removed)", age(now, ms.LastRun), ms.Pruned)
	}
	if ms.LastErr != "" {
		fmt.Fprintf(&b, ", error: %s", truncate(ms.LastErr, 120))
	}
	return b.String()
}

func age(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return now.Sub(t).Round(time.Second).String() + " ago"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
