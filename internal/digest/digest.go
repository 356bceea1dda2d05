// Package digest builds the weekly report from the article store.
package digest

import (
	"time"

	"github.com/ryosukesatoh/autumn/internal/store"
)

// Week is the trailing window covered by BuildWeekly.
const Week = 7 * 24 * time.Hour

// Digest is the set of records captured in (Start, End].
type Digest struct {
	Start   time.Time
	End     time.Time
	Entries []store.Record
}

// Empty reports whether there is nothing to deliver.
func (d *Digest) Empty() bool {
	return d == nil || len(d.Entries) == 0
}

// Summaries projects the entries to their summary text, oldest first.
func (d *Digest) Summaries() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		out = append(out, e.Summary)
	}
	return out
}

// BuildWeekly returns the records captured during the seven days before now.
func BuildWeekly(st *store.Store, now time.Time) *Digest {
	return Build(st, now, Week)
}

// Build returns the records captured strictly after now-window. A
// non-positive window falls back to Week.
func Build(st *store.Store, now time.Time, window time.Duration) *Digest {
	if window <= 0 {
		window = Week
	}
	cutoff := now.Add(-window)
	return &Digest{
		Start:   cutoff,
		End:     now,
		Entries: st.RecordsSince(cutoff),
	}
}
