package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ryosukesatoh/autumn/internal/config"
	"github.com/ryosukesatoh/autumn/internal/digest"
	"github.com/ryosukesatoh/autumn/internal/fetcher"
	"github.com/ryosukesatoh/autumn/internal/publisher"
	"github.com/ryosukesatoh/autumn/internal/store"
	"github.com/ryosukesatoh/autumn/internal/summarizer"
)

// Mock implementations

// blockingPublisher signals started and then waits for release.
type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingPublisher) Publish(ctx context.Context, d *digest.Digest) error {
	close(b.started)
	<-b.release
	return nil
}

type mockPublisher struct {
	published *digest.Digest
	calls     int
	err       error
}

func (m *mockPublisher) Publish(ctx context.Context, d *digest.Digest) error {
	m.calls++
	m.published = d
	return m.err
}

var fixedNow = time.Date(2025, 6, 13, 18, 0, 0, 0, time.UTC)

var pages = map[string]string{
	"https://example.com/": `<a href="/blog/2025/alpha">a</a><a href="/blog/2025/bravo">b</a>`,
	"https://example.com/blog/2025/alpha": `<h1>Alpha</h1><p>alpha text</p>`,
	"https://example.com/blog/2025/bravo": `<h1>Bravo</h1><p>bravo text</p>`,
}

func mockFetcher() fetcher.Fetcher {
	return fetcher.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		page, ok := pages[url]
		if !ok {
			return nil, &fetcher.StatusError{URL: url, StatusCode: 404}
		}
		return []byte(page), nil
	})
}

func mockSummarizer() summarizer.Summarizer {
	return summarizer.Func(func(ctx context.Context, titles []string, body string) (string, error) {
		return "summary of " + strings.Join(titles, ","), nil
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Sites:       []config.Site{{Name: "Example", URL: "https://example.com/", Kind: config.KindHTML}},
		Concurrency: 1,
		Store:       config.StoreConfig{Path: filepath.Join(t.TempDir(), "storage.json"), OnCorrupt: config.OnCorruptAbort},
		Fetcher:     config.FetcherConfig{MaxBodyChars: 20000},
		Digest:      config.DigestConfig{Window: 7 * 24 * time.Hour},
	}
}

func newTestRunner(cfg *config.Config, pubs ...publisher.Publisher) (*Runner, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	r := New(cfg, mockFetcher(), mockSummarizer(), pubs, zap.New(core))
	r.now = func() time.Time { return fixedNow }
	return r, logs
}

func seedStore(t *testing.T, path string, ages ...time.Duration) {
	t.Helper()
	st := store.New(path)
	for i, age := range ages {
		st.Put("https://example.com/blog/seed-"+string(rune('a'+i)), store.Record{
			CapturedAt: fixedNow.Add(-age),
			Summary:    "seed " + string(rune('a'+i)),
		})
	}
	if err := st.Save(); err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

func TestDailyStoresNewArticles(t *testing.T) {
	cfg := testConfig(t)
	r, logs := newTestRunner(cfg)

	if err := r.Daily(context.Background()); err != nil {
		t.Fatalf("Daily() error = %v", err)
	}

	st, err := store.Load(cfg.Store.Path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Len() != 2 {
		t.Errorf("Expected 2 stored articles, got %d", st.Len())
	}
	rec, _ := st.Get("https://example.com/blog/2025/alpha")
	if rec.Summary != "summary of Alpha" || !rec.CapturedAt.Equal(fixedNow) {
		t.Errorf("Unexpected record %+v", rec)
	}

	finished := logs.FilterMessage("Daily crawl finished").All()
	if len(finished) != 1 {
		t.Fatalf("Expected one finish log line, got %d", len(finished))
	}
	if got := finished[0].ContextMap()["new_articles"]; got != int64(2) {
		t.Errorf("new_articles = %v", got)
	}
}

func TestDailyAllSitesFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sites = []config.Site{{Name: "Broken", URL: "https://broken.example.com/"}}
	r, _ := newTestRunner(cfg)

	if err := r.Daily(context.Background()); err == nil {
		t.Fatal("Expected error when every site fails")
	}
}

func TestDailyCorruptStoreAborts(t *testing.T) {
	cfg := testConfig(t)
	os.WriteFile(cfg.Store.Path, []byte("{broken"), 0o600)
	r, _ := newTestRunner(cfg)

	err := r.Daily(context.Background())
	if !store.IsCorrupt(err) {
		t.Fatalf("Expected CorruptError, got %v", err)
	}
	data, _ := os.ReadFile(cfg.Store.Path)
	if string(data) != "{broken" {
		t.Error("Corrupt store must not be overwritten under the abort policy")
	}
}

func TestDailyCorruptStoreReset(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.OnCorrupt = config.OnCorruptReset
	os.WriteFile(cfg.Store.Path, []byte("{broken"), 0o600)
	r, logs := newTestRunner(cfg)

	if err := r.Daily(context.Background()); err != nil {
		t.Fatalf("Daily() error = %v", err)
	}

	matches, _ := filepath.Glob(cfg.Store.Path + ".corrupt-*")
	if len(matches) != 1 {
		t.Errorf("Expected corrupt file to be moved aside, found %v", matches)
	}
	if logs.FilterMessage("Store was corrupt; continuing with an empty store").Len() != 1 {
		t.Error("Expected the reset to be logged")
	}
	st, err := store.Load(cfg.Store.Path)
	if err != nil || st.Len() != 2 {
		t.Errorf("Expected fresh store with 2 articles, got %v (%v)", st, err)
	}
}

func TestWeeklyPublishesTrailingWeek(t *testing.T) {
	cfg := testConfig(t)
	seedStore(t, cfg.Store.Path, 24*time.Hour, 6*24*time.Hour, 9*24*time.Hour)
	pub := &mockPublisher{}
	r, _ := newTestRunner(cfg, pub)

	if err := r.Weekly(context.Background()); err != nil {
		t.Fatalf("Weekly() error = %v", err)
	}
	if pub.calls != 1 {
		t.Fatalf("Expected 1 publish, got %d", pub.calls)
	}
	got := pub.published.Summaries()
	if len(got) != 2 || got[0] != "seed b" || got[1] != "seed a" {
		t.Errorf("Unexpected digest summaries %v", got)
	}
}

func TestWeeklyEmptyDigestSkipsPublishers(t *testing.T) {
	cfg := testConfig(t)
	seedStore(t, cfg.Store.Path, 30*24*time.Hour)
	pub := &mockPublisher{}
	r, logs := newTestRunner(cfg, pub)

	if err := r.Weekly(context.Background()); err != nil {
		t.Fatalf("Weekly() error = %v", err)
	}
	if pub.calls != 0 {
		t.Errorf("Expected no publish for an empty week, got %d", pub.calls)
	}
	if logs.FilterMessage("No summaries to send this week.").Len() != 1 {
		t.Error("Expected the empty week to be logged")
	}
}

func TestWeeklyPartialPublisherFailure(t *testing.T) {
	cfg := testConfig(t)
	seedStore(t, cfg.Store.Path, time.Hour)
	failing := &mockPublisher{err: errors.New("smtp down")}
	working := &mockPublisher{}
	r, _ := newTestRunner(cfg, failing, working)

	if err := r.Weekly(context.Background()); err != nil {
		t.Fatalf("Expected success when one publisher works, got %v", err)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("Expected both publishers to be called, got %d and %d", failing.calls, working.calls)
	}
}

func TestWeeklyAllPublishersFail(t *testing.T) {
	cfg := testConfig(t)
	seedStore(t, cfg.Store.Path, time.Hour)
	boom := errors.New("smtp down")
	r, _ := newTestRunner(cfg, &mockPublisher{err: boom}, &mockPublisher{err: boom})

	err := r.Weekly(context.Background())
	if err == nil {
		t.Fatal("Expected error when all publishers fail")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected publisher error to be wrapped, got %v", err)
	}
}

func TestWeeklyRetention(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Retention = 30 * 24 * time.Hour
	seedStore(t, cfg.Store.Path, time.Hour, 40*24*time.Hour)
	r, _ := newTestRunner(cfg, &mockPublisher{})

	if err := r.Weekly(context.Background()); err != nil {
		t.Fatalf("Weekly() error = %v", err)
	}
	st, err := store.Load(cfg.Store.Path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Len() != 1 || !st.Contains("https://example.com/blog/seed-a") {
		t.Errorf("Expected only the recent record to survive, got %d records", st.Len())
	}
}

func TestWeeklyWithoutRetentionKeepsEverything(t *testing.T) {
	cfg := testConfig(t)
	seedStore(t, cfg.Store.Path, time.Hour, 400*24*time.Hour)
	r, _ := newTestRunner(cfg, &mockPublisher{})

	if err := r.Weekly(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, _ := store.Load(cfg.Store.Path)
	if st.Len() != 2 {
		t.Errorf("Expected store to keep all records, got %d", st.Len())
	}
}

func TestOpenStoreIsShared(t *testing.T) {
	cfg := testConfig(t)
	r, _ := newTestRunner(cfg)

	a, err := r.OpenStore()
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.OpenStore()
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Expected both jobs to share one store instance")
	}
}

func TestOpenStoreRetriesAfterFailedLoad(t *testing.T) {
	cfg := testConfig(t)
	os.WriteFile(cfg.Store.Path, []byte("{broken"), 0o600)
	r, _ := newTestRunner(cfg)

	if _, err := r.OpenStore(); !store.IsCorrupt(err) {
		t.Fatalf("Expected CorruptError, got %v", err)
	}
	os.Remove(cfg.Store.Path)
	if _, err := r.OpenStore(); err != nil {
		t.Fatalf("Expected load to succeed once the file is gone, got %v", err)
	}
}

func TestDailyDuringWeeklyKeepsCommittedRecords(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Retention = 30 * 24 * time.Hour
	seedStore(t, cfg.Store.Path, time.Hour, 40*24*time.Hour)
	pub := &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	r, _ := newTestRunner(cfg, pub)

	weeklyDone := make(chan error, 1)
	go func() { weeklyDone <- r.Weekly(context.Background()) }()

	select {
	case <-pub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("weekly job never reached its publisher")
	}

	if err := r.Daily(context.Background()); err != nil {
		t.Fatalf("Daily() error = %v", err)
	}
	close(pub.release)

	select {
	case err := <-weeklyDone:
		if err != nil {
			t.Fatalf("Weekly() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("weekly job did not finish")
	}

	st, err := store.Load(cfg.Store.Path)
	if err != nil {
		t.Fatal(err)
	}
	for _, url := range []string{
		"https://example.com/blog/2025/alpha",
		"https://example.com/blog/2025/bravo",
		"https://example.com/blog/seed-a",
	} {
		if !st.Contains(url) {
			t.Errorf("Expected %s to survive compaction", url)
		}
	}
	if st.Contains("https://example.com/blog/seed-b") {
		t.Error("Expected the expired record to be compacted")
	}
	if st.Len() != 3 {
		t.Errorf("Expected 3 records on disk, got %d", st.Len())
	}
}
