package digest

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/autumn/internal/store"
)

var now = time.Date(2025, 6, 13, 18, 0, 0, 0, time.UTC)

func sampleStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "storage.json"))
	st.Put("https://example.com/blog/one-day", store.Record{CapturedAt: now.Add(-24 * time.Hour), Summary: "one day"})
	st.Put("https://example.com/blog/six-days", store.Record{CapturedAt: now.Add(-6 * 24 * time.Hour), Summary: "six days"})
	st.Put("https://example.com/blog/nine-days", store.Record{CapturedAt: now.Add(-9 * 24 * time.Hour), Summary: "nine days"})
	return st
}

func TestBuildWeekly(t *testing.T) {
	d := BuildWeekly(sampleStore(t), now)

	assert.False(t, d.Empty())
	assert.Equal(t, []string{"six days", "one day"}, d.Summaries())
	assert.True(t, d.Start.Equal(now.Add(-Week)))
	assert.True(t, d.End.Equal(now))
}

func TestBuildWeeklyEmpty(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "storage.json"))
	d := BuildWeekly(st, now)
	assert.True(t, d.Empty())
	assert.Empty(t, d.Summaries())
}

func TestBuildCustomWindow(t *testing.T) {
	d := Build(sampleStore(t), now, 10*24*time.Hour)
	assert.Len(t, d.Entries, 3)

	d = Build(sampleStore(t), now, 0)
	assert.Len(t, d.Entries, 2)
}

func TestNilDigestIsEmpty(t *testing.T) {
	var d *Digest
	assert.True(t, d.Empty())
	assert.Nil(t, d.Summaries())
}

func TestRenderDigest(t *testing.T) {
	d := &Digest{
		Start: now.Add(-Week),
		End:   now,
		Entries: []store.Record{{
			URL:        "https://example.com/blog/2025/chip?a=1&b=2",
			CapturedAt: now.Add(-time.Hour),
			Summary:    "=== REPORT START ===\n1. **New chip**\n- Description: faster\n<script>alert(1)</script>\n=== REPORT END ===",
		}},
	}

	out, err := RenderDigest(d)
	require.NoError(t, err)
	page := string(out)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<h1>"+Title+"</h1>")
	assert.Contains(t, page, "June 6, 2025 to June 13, 2025")
	assert.Contains(t, page, `href="https://example.com/blog/2025/chip?a=1&amp;b=2"`)
	assert.Contains(t, page, "<strong>New chip</strong>")
	assert.Contains(t, page, "REPORT START")
	assert.NotContains(t, page, "<script>")
}

func TestRenderEmptyDigest(t *testing.T) {
	out, err := NewRenderer().Render(&Digest{Start: now.Add(-Week), End: now})
	require.NoError(t, err)
	assert.Contains(t, string(out), "No new articles this week.")
}

func TestRenderNilDigest(t *testing.T) {
	var out []byte
	var err error
	require.NotPanics(t, func() { out, err = RenderDigest(nil) })
	require.NoError(t, err)
	assert.Contains(t, string(out), "No new articles this week.")
	assert.NotContains(t, string(out), `class="period"`)
}
