package listing

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// DefaultDebounce is how long input must be quiet before it becomes the
// effective query.
const DefaultDebounce = 500 * time.Millisecond

// InputEvent is one change of the search box. At is measured from any fixed
// origin; only differences matter.
type InputEvent struct {
	At    time.Duration
	Value string
}

// QueryEvent is an effective query emitted once input settled.
type QueryEvent struct {
	At    time.Duration
	Query string
}

// Debounce maps a stream of input changes to the queries that would fire
// after wait of inactivity. An input fires at its own time plus wait unless
// a newer input arrives first. Values are trimmed and an effective query
// equal to the previous one is dropped; the stream starts from the empty
// query.
func Debounce(events []InputEvent, wait time.Duration) []QueryEvent {
	if wait <= 0 {
		wait = DefaultDebounce
	}
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b InputEvent) int {
		return cmp.Compare(a.At, b.At)
	})

	var out []QueryEvent
	last := ""
	for i, ev := range sorted {
		fire := ev.At + wait
		if i+1 < len(sorted) && sorted[i+1].At < fire {
			continue
		}
		q := strings.TrimSpace(ev.Value)
		if q == last {
			continue
		}
		out = append(out, QueryEvent{At: fire, Query: q})
		last = q
	}
	return out
}
