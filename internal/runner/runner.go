// Package runner wires the store, crawler, digest and publishers into the
// daily and weekly jobs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryosukesatoh/autumn/internal/config"
	"github.com/ryosukesatoh/autumn/internal/crawler"
	"github.com/ryosukesatoh/autumn/internal/digest"
	"github.com/ryosukesatoh/autumn/internal/fetcher"
	"github.com/ryosukesatoh/autumn/internal/publisher"
	"github.com/ryosukesatoh/autumn/internal/store"
	"github.com/ryosukesatoh/autumn/internal/summarizer"
)

// Runner runs the daily crawl and the weekly digest.
type Runner struct {
	cfg        *config.Config
	fetcher    fetcher.Fetcher
	summarizer summarizer.Summarizer
	publishers []publisher.Publisher
	logger     *zap.Logger
	now        func() time.Time

	storeMu sync.Mutex
	store   *store.Store
}

// New creates a Runner. The store is opened on first use and shared by both jobs.
func New(cfg *config.Config, f fetcher.Fetcher, s summarizer.Summarizer, pubs []publisher.Publisher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		fetcher:    f,
		summarizer: s,
		publishers: pubs,
		logger:     logger,
		now:        time.Now,
	}
}

// OpenStore returns the runner's store, loading it on first use and applying
// the on_corrupt policy. Daily and Weekly share the instance so every Commit
// and Compact is serialized by the same write lock. A failed load is not
// cached.
func (r *Runner) OpenStore() (*store.Store, error) {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	if r.store != nil {
		return r.store, nil
	}
	st, err := r.loadStore()
	if err != nil {
		return nil, err
	}
	r.store = st
	return st, nil
}

func (r *Runner) loadStore() (*store.Store, error) {
	path := r.cfg.Store.Path
	st, err := store.Load(path)
	if err == nil {
		return st, nil
	}
	if !store.IsCorrupt(err) || r.cfg.Store.OnCorrupt != config.OnCorruptReset {
		return nil, fmt.Errorf("runner: %w", err)
	}

	st, moved, rerr := store.Recover(path)
	if rerr != nil {
		return nil, fmt.Errorf("runner: %w", errors.Join(err, rerr))
	}
	r.logger.Error("Store was corrupt; continuing with an empty store",
		zap.String("path", path),
		zap.String("moved_to", moved),
		zap.Error(err),
	)
	return st, nil
}

// Daily crawls every configured site.
func (r *Runner) Daily(ctx context.Context) error {
	_, err := r.Crawl(ctx, r.cfg.Sites)
	return err
}

// Crawl crawls sites into the store. Per-article and per-site failures are
// logged and counted; an error is returned only when the store cannot be
// opened or no site could be crawled at all.
func (r *Runner) Crawl(ctx context.Context, sites []config.Site) (*crawler.Report, error) {
	st, err := r.OpenStore()
	if err != nil {
		return nil, err
	}

	r.logger.Info("Starting daily crawl",
		zap.Int("sites", len(sites)),
		zap.Int("known_articles", st.Len()),
	)

	p := crawler.New(r.fetcher, r.summarizer, st,
		crawler.WithLogger(r.logger),
		crawler.WithMaxBodyChars(r.cfg.Fetcher.MaxBodyChars),
		crawler.WithConcurrency(r.cfg.Concurrency),
		crawler.WithClock(r.now),
	)
	report := p.CrawlAll(ctx, sites)

	failedSites := report.FailedSites()
	for _, s := range failedSites {
		r.logger.Warn("Site not crawled", zap.String("site", s.Site), zap.Error(s.Err))
	}
	r.logger.Info("Daily crawl finished",
		zap.Int("new_articles", report.Succeeded()),
		zap.Int("failed_articles", report.Failed()),
		zap.Int("failed_sites", len(failedSites)),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("runner: crawl interrupted: %w", err)
	}
	if len(sites) > 0 && len(failedSites) == len(sites) {
		return report, fmt.Errorf("runner: all %d sites failed", len(sites))
	}
	return report, nil
}

// Weekly builds the digest for the trailing window and publishes it. An
// empty digest is logged and nothing is sent.
func (r *Runner) Weekly(ctx context.Context) error {
	st, err := r.OpenStore()
	if err != nil {
		return err
	}

	now := r.now()
	d := digest.Build(st, now, r.cfg.Digest.Window)
	if d.Empty() {
		r.logger.Info("No summaries to send this week.")
	} else {
		r.logger.Info("Built weekly digest", zap.Int("articles", len(d.Entries)))
		if err := r.Publish(ctx, d); err != nil {
			return err
		}
	}

	if ret := r.cfg.Store.Retention; ret > 0 {
		removed, err := st.Compact(now.Add(-ret))
		if err != nil {
			r.logger.Error("Store compaction failed", zap.Error(err))
		} else if removed > 0 {
			r.logger.Info("Compacted store", zap.Int("removed", removed))
		}
	}
	return nil
}

// Publish hands d to every publisher, continuing past failures. It fails
// only if every publisher failed.
func (r *Runner) Publish(ctx context.Context, d *digest.Digest) error {
	var publishErrors []error
	for _, pub := range r.publishers {
		name := fmt.Sprintf("%T", pub)
		if err := pub.Publish(ctx, d); err != nil {
			publishErrors = append(publishErrors, fmt.Errorf("publish via %s failed: %w", name, err))
			r.logger.Warn("Publisher failed", zap.String("publisher", name), zap.Error(err))
		} else {
			r.logger.Info("Published digest", zap.String("publisher", name))
		}
	}

	if len(publishErrors) == len(r.publishers) && len(r.publishers) > 0 {
		return fmt.Errorf("runner: all publishers failed: %w", errors.Join(publishErrors...))
	}
	if len(publishErrors) > 0 {
		r.logger.Warn("Weekly digest completed with publisher failures",
			zap.Int("failed", len(publishErrors)),
			zap.Int("publishers", len(r.publishers)),
		)
	}
	return nil
}
