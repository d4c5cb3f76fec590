package temporal

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Grouper coalesces chronologically close intervals of the same person
// into one period per run. It is used to build OBSERVATION_PERIOD rows
// out of deduplicated visit intervals.
type Grouper struct {
	log zerolog.Logger
}

// NewGrouper creates a Grouper.
func NewGrouper(log zerolog.Logger) *Grouper {
	return &Grouper{log: log}
}

// Group merges every run of same-person intervals whose gap to the next
// interval is under nDays. Each run becomes a single interval spanning
// the run's first start to its last end, tagged with the mode of the
// concepts absorbed into it. A gap of exactly nDays is a break, not a
// merge. The input slice is not modified.
//
// Concept mode ties resolve to the smallest concept among the most
// frequent, so repeated runs over the same data are reproducible.
func (g *Grouper) Group(intervals []Interval, nDays int) []Interval {
	rows := make([]Interval, len(intervals))
	copy(rows, intervals)
	if len(rows) == 0 {
		return rows
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PersonID != rows[j].PersonID {
			return rows[i].PersonID < rows[j].PersonID
		}
		if !rows[i].Start.Equal(rows[j].Start) {
			return rows[i].Start.Before(rows[j].Start)
		}
		return rows[i].End.After(rows[j].End)
	})

	breakGap := time.Duration(nDays) * 24 * time.Hour

	out := make([]Interval, 0, len(rows))
	runStart := 0
	for i := range rows {
		if i+1 < len(rows) &&
			rows[i+1].PersonID == rows[i].PersonID &&
			rows[i+1].Start.Sub(rows[i].End) < breakGap {
			continue
		}
		// Row i closes the run: last of its person or followed by a gap
		// of at least nDays.
		out = append(out, Interval{
			PersonID: rows[runStart].PersonID,
			Start:    rows[runStart].Start,
			End:      rows[i].End,
			Concept:  conceptMode(rows[runStart : i+1]),
		})
		runStart = i + 1
	}

	g.log.Debug().
		Int("input", len(rows)).
		Int("periods", len(out)).
		Int("n_days", nDays).
		Msg("grouped intervals")
	return out
}

// conceptMode returns the most frequent concept in the run, preferring
// the smallest concept value on ties.
func conceptMode(run []Interval) int64 {
	counts := make(map[int64]int, len(run))
	for _, iv := range run {
		counts[iv.Concept]++
	}
	var (
		best      int64
		bestCount int
	)
	for concept, n := range counts {
		if n > bestCount || (n == bestCount && concept < best) {
			best = concept
			bestCount = n
		}
	}
	return best
}
