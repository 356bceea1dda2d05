package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ryosukesatoh/autumn/internal/store"
)

const messageResponse = `{
  "id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
  "content": [{"type": "text", "text": "=== REPORT START ===\n1. Something new\n=== REPORT END ==="}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 1, "output_tokens": 1}
}`

func newSiteServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	summaries := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
<a href="/blog/2025/alpha">Alpha</a>
<a href="/blog/2025/bravo">Bravo</a>
<a href="/tag/ai">AI</a>
</body></html>`)
	})
	mux.HandleFunc("/blog/2025/alpha", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<h1>Alpha</h1><p>Alpha ships.</p>`)
	})
	mux.HandleFunc("/blog/2025/bravo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<h1>Bravo</h1><p>Bravo ships.</p>`)
	})
	mux.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		summaries.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, messageResponse)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, summaries
}

func writeTestConfig(t *testing.T, srvURL string) (configPath, storePath string) {
	t.Helper()
	dir := t.TempDir()
	storePath = filepath.Join(dir, "storage.json")
	configPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
sites:
  - name: Example
    url: %s/
store:
  path: %s
summarizer:
  api_key: "${AUTUMN_TEST_KEY}"
  base_url: %s
  model: claude-test
publisher:
  type: stdout
log:
  level: error
`, srvURL, storePath, srvURL)
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath, storePath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCrawlCommand(t *testing.T) {
	srv, summaries := newSiteServer(t)
	configPath, storePath := writeTestConfig(t, srv.URL)
	t.Setenv("AUTUMN_TEST_KEY", "test-key")

	out, err := execute(t, "--config", configPath, "--env-file", "", "crawl")
	if err != nil {
		t.Fatalf("crawl failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "total: 2 new, 0 failed") {
		t.Errorf("Unexpected crawl output:\n%s", out)
	}

	st, err := store.Load(storePath)
	if err != nil {
		t.Fatalf("Failed to load store: %v", err)
	}
	if st.Len() != 2 {
		t.Errorf("Expected 2 stored articles, got %d", st.Len())
	}

	// A second run finds nothing new and does not call the model again.
	out, err = execute(t, "--config", configPath, "--env-file", "", "crawl")
	if err != nil {
		t.Fatalf("second crawl failed: %v", err)
	}
	if !strings.Contains(out, "total: 0 new, 0 failed") || summaries.Load() != 2 {
		t.Errorf("Expected no new work on second run, got %d model calls:\n%s", summaries.Load(), out)
	}
}

func TestCrawlCommandUnknownSite(t *testing.T) {
	srv, _ := newSiteServer(t)
	configPath, _ := writeTestConfig(t, srv.URL)
	t.Setenv("AUTUMN_TEST_KEY", "test-key")

	if _, err := execute(t, "--config", configPath, "--env-file", "", "crawl", "--site", "Nope"); err == nil {
		t.Fatal("Expected error for unknown site")
	}
}

func TestMissingAPIKeyIsFatal(t *testing.T) {
	srv, summaries := newSiteServer(t)
	configPath, _ := writeTestConfig(t, srv.URL)
	t.Setenv("AUTUMN_TEST_KEY", "")

	_, err := execute(t, "--config", configPath, "--env-file", "", "crawl")
	if err == nil || !strings.Contains(err.Error(), "summarizer.api_key") {
		t.Fatalf("Expected api key validation error, got %v", err)
	}
	if summaries.Load() != 0 {
		t.Error("No work should happen with an invalid config")
	}
}

func TestEnvFileSuppliesAPIKey(t *testing.T) {
	srv, _ := newSiteServer(t)
	configPath, _ := writeTestConfig(t, srv.URL)
	t.Setenv("AUTUMN_TEST_KEY", "")
	os.Unsetenv("AUTUMN_TEST_KEY")

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("AUTUMN_TEST_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("AUTUMN_TEST_KEY") })

	if out, err := execute(t, "--config", configPath, "--env-file", envFile, "crawl"); err != nil {
		t.Fatalf("crawl failed: %v\n%s", err, out)
	}
}

func TestLinksCommand(t *testing.T) {
	srv, _ := newSiteServer(t)

	out, err := execute(t, "links", srv.URL+"/")
	if err != nil {
		t.Fatalf("links failed: %v", err)
	}
	want := srv.URL + "/blog/2025/alpha\n" + srv.URL + "/blog/2025/bravo\n"
	if out != want {
		t.Errorf("links output = %q, want %q", out, want)
	}
}

func TestDigestCommandEmptyStore(t *testing.T) {
	srv, _ := newSiteServer(t)
	configPath, _ := writeTestConfig(t, srv.URL)
	t.Setenv("AUTUMN_TEST_KEY", "test-key")

	if _, err := execute(t, "--config", configPath, "--env-file", "", "digest", "--stdout"); err != nil {
		t.Fatalf("digest failed: %v", err)
	}
}

func TestHistoryCommand(t *testing.T) {
	srv, _ := newSiteServer(t)
	configPath, _ := writeTestConfig(t, srv.URL)
	t.Setenv("AUTUMN_TEST_KEY", "test-key")

	if out, err := execute(t, "--config", configPath, "--env-file", "", "crawl"); err != nil {
		t.Fatalf("crawl failed: %v\n%s", err, out)
	}

	out, err := execute(t, "--config", configPath, "--env-file", "", "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, srv.URL+"/blog/2025/alpha") || !strings.Contains(out, srv.URL+"/blog/2025/bravo") {
		t.Errorf("Expected both articles listed:\n%s", out)
	}
	if !strings.Contains(out, "2 of 2 articles") {
		t.Errorf("Unexpected history footer:\n%s", out)
	}
}
