package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ryosukesatoh/autumn/internal/digest"
)

const placeholderPage = `<!DOCTYPE html><html><body><h1>` + digest.Title + `</h1><p>No digest available yet. Check back later.</p></body></html>`

// WebPublisher serves the latest digest as an HTML page over HTTP.
type WebPublisher struct {
	addr     string
	server   *http.Server
	logger   *zap.Logger
	renderer *digest.Renderer

	mu          sync.RWMutex
	latest      []byte
	publishedAt time.Time
}

// NewWebPublisher creates a WebPublisher listening on addr once started.
func NewWebPublisher(addr string, logger *zap.Logger) *WebPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	wp := &WebPublisher{
		addr:     addr,
		logger:   logger,
		renderer: digest.NewRenderer(),
	}
	wp.server = &http.Server{
		Addr:              addr,
		Handler:           wp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return wp
}

// Handler returns the routes served by the publisher.
func (wp *WebPublisher) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", wp.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/digest.html", wp.handleDownload).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", wp.handleHealth).Methods(http.MethodGet)
	return r
}

// Start begins serving HTTP in the background. Call Shutdown to stop.
func (wp *WebPublisher) Start() error {
	ln, err := net.Listen("tcp", wp.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", wp.addr, err)
	}
	go func() {
		wp.logger.Info("Web publisher listening", zap.String("addr", ln.Addr().String()))
		if err := wp.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wp.logger.Error("Web publisher stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (wp *WebPublisher) Shutdown(ctx context.Context) error {
	return wp.server.Shutdown(ctx)
}

func (wp *WebPublisher) Publish(_ context.Context, d *digest.Digest) error {
	if d.Empty() {
		return nil
	}
	page, err := wp.renderer.Render(d)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}

	wp.mu.Lock()
	wp.latest = page
	wp.publishedAt = time.Now()
	wp.mu.Unlock()

	wp.logger.Info("Web publisher updated", zap.Int("articles", len(d.Entries)))
	return nil
}

func (wp *WebPublisher) current() ([]byte, time.Time) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.latest, wp.publishedAt
}

func (wp *WebPublisher) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, _ := wp.current()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if page == nil {
		fmt.Fprint(w, placeholderPage)
		return
	}
	w.Write(page)
}

func (wp *WebPublisher) handleDownload(w http.ResponseWriter, r *http.Request) {
	page, _ := wp.current()
	if page == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="digest.html"`)
	w.Write(page)
}

func (wp *WebPublisher) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, at := wp.current()
	resp := map[string]any{"status": "ok"}
	if !at.IsZero() {
		resp["published_at"] = at.Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
