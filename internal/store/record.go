package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record is one processed article. URL is the map key on disk and is not
// repeated inside the record.
type Record struct {
	URL        string    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
	Summary    string    `json:"summary"`
}

// timestampLayouts are tried in order when reading captured_at. The
// space-separated forms appear in stores written by older versions, which
// kept the timestamp under "date" in local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON accepts both the current captured_at key and the legacy date
// key.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		CapturedAt string `json:"captured_at"`
		Date       string `json:"date"`
		Summary    string `json:"summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts := raw.CapturedAt
	if ts == "" {
		ts = raw.Date
	}
	if ts == "" {
		return errors.New("record has no captured_at")
	}

	t, err := parseTimestamp(ts)
	if err != nil {
		return err
	}
	r.CapturedAt = t
	r.Summary = raw.Summary
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
