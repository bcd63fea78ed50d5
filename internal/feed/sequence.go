package feed

import (
	"slices"

	"trellobot/internal/trello"
)

// Result is the outcome of sequencing one fetched batch.
type Result struct {
	// Fresh holds the actions newer than the checkpoint, ascending, each id once.
	Fresh []trello.Action
	// Checkpoint is the highest id in the batch when Advanced, else the input checkpoint.
	Checkpoint trello.ActionID
	Advanced   bool
}

// Sequence orders a raw batch (in whatever order the API returned it) and
// drops everything at or below cp. It never mutates batch.
func Sequence(batch []trello.Action, cp trello.ActionID) Result {
	res := Result{Checkpoint: cp}
	if len(batch) == 0 {
		return res
	}
	sorted := slices.Clone(batch)
	slices.SortStableFunc(sorted, func(a, b trello.Action) int { return trello.Compare(a.ID, b.ID) })

	var last trello.ActionID
	for _, a := range sorted {
		if trello.Compare(a.ID, cp) <= 0 {
			continue
		}
		if len(res.Fresh) > 0 && trello.Compare(a.ID, last) == 0 {
			continue
		}
		res.Fresh = append(res.Fresh, a)
		last = a.ID
	}
	if len(res.Fresh) > 0 {
		// sorted ascending, so the last survivor is also the batch maximum
		res.Checkpoint = trello.MaxID(cp, last)
		res.Advanced = true
	}
	return res
}
