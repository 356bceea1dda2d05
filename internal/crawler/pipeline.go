// Package crawler runs the daily crawl: discover article links on each
// company home page, summarize the ones not seen before and record them.
package crawler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryosukesatoh/autumn/internal/config"
	"github.com/ryosukesatoh/autumn/internal/extract"
	"github.com/ryosukesatoh/autumn/internal/fetcher"
	"github.com/ryosukesatoh/autumn/internal/links"
	"github.com/ryosukesatoh/autumn/internal/store"
	"github.com/ryosukesatoh/autumn/internal/summarizer"
)

// Pipeline crawls sites into a shared store. Links of one site are processed
// one at a time; CrawlAll may run several sites at once, relying on
// store.Commit to serialize writes.
type Pipeline struct {
	fetcher      fetcher.Fetcher
	links        *links.Extractor
	summarizer   summarizer.Summarizer
	store        *store.Store
	logger       *zap.Logger
	maxBodyChars int
	concurrency  int
	now          func() time.Time
}

var errNoContent = errors.New("crawler: page has no headings or paragraphs")

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for per-site and per-article events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMaxBodyChars sets the cap applied to extracted text before summarizing.
func WithMaxBodyChars(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBodyChars = n
		}
	}
}

// WithConcurrency sets how many sites CrawlAll processes at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline that records new articles in st.
func New(f fetcher.Fetcher, s summarizer.Summarizer, st *store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:      f,
		links:        links.NewExtractor(f),
		summarizer:   s,
		store:        st,
		logger:       zap.NewNop(),
		maxBodyChars: extract.DefaultMaxBodyChars,
		concurrency:  1,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CrawlOne crawls an HTML home page. The returned error is a SiteError when
// the link list could not be built, or the context error when the crawl was
// cancelled part way. Failures of individual articles are only reported in
// the result.
func (p *Pipeline) CrawlOne(ctx context.Context, homeURL string) (*SiteResult, error) {
	return p.CrawlSite(ctx, config.Site{Name: homeURL, URL: homeURL, Kind: config.KindHTML})
}

// CrawlSite is CrawlOne for a configured site of either kind.
func (p *Pipeline) CrawlSite(ctx context.Context, site config.Site) (*SiteResult, error) {
	res := &SiteResult{Site: site.Name, HomeURL: site.URL}
	log := p.logger.With(zap.String("site", site.Name))

	var (
		candidates []string
		err        error
	)
	if site.Kind == config.KindFeed {
		candidates, err = p.links.ExtractFeedLinks(ctx, site.URL)
	} else {
		candidates, err = p.links.ExtractArticleLinks(ctx, site.URL)
	}
	if err != nil {
		res.Err = &SiteError{Site: site.Name, URL: site.URL, Err: err}
		log.Error("Failed to build candidate list",
			zap.String("url", site.URL),
			zap.Error(err),
		)
		return res, res.Err
	}
	res.Candidates = len(candidates)
	log.Info("Found candidate links", zap.Int("count", len(candidates)))

	for _, link := range candidates {
		if err := ctx.Err(); err != nil {
			res.Err = err
			log.Warn("Crawl cancelled", zap.Int("processed", len(res.Items)))
			return res, err
		}
		if p.store.Contains(link) {
			res.Known++
			continue
		}

		item, dup := p.process(ctx, link)
		if dup {
			res.Known++
			continue
		}
		res.Items = append(res.Items, item)
		if item.OK() {
			log.Info("Stored new article", zap.String("url", link))
		} else {
			log.Warn("Skipped article",
				zap.String("url", link),
				zap.String("stage", string(item.Stage)),
				zap.Error(item.Err),
			)
		}
	}

	log.Info("Site crawl finished",
		zap.Int("new", res.Succeeded()),
		zap.Int("failed", res.Failed()),
		zap.Int("known", res.Known),
	)
	return res, nil
}

// process runs fetch, extract, summarize and store for one new link. dup is
// true when another site committed the same URL while this one was working
// on it.
func (p *Pipeline) process(ctx context.Context, link string) (item ItemResult, dup bool) {
	raw, err := p.fetcher.FetchPage(ctx, link)
	if err != nil {
		return ItemResult{URL: link, Stage: StageFetch, Err: err}, false
	}

	content, err := extract.ExtractContent(raw)
	if err != nil {
		return ItemResult{URL: link, Stage: StageExtract, Err: err}, false
	}
	if content.Empty() {
		return ItemResult{URL: link, Stage: StageExtract, Err: errNoContent}, false
	}

	body := extract.Truncate(content.Body, p.maxBodyChars)
	summary, err := p.summarizer.Summarize(ctx, content.Titles, body)
	if err != nil {
		return ItemResult{URL: link, Stage: StageSummarize, Err: err}, false
	}

	added, err := p.store.Commit(link, store.Record{CapturedAt: p.now(), Summary: summary})
	if err != nil {
		return ItemResult{URL: link, Stage: StageStore, Err: err}, false
	}
	if !added {
		return ItemResult{}, true
	}
	return ItemResult{URL: link, Stage: StageDone, Summary: summary}, false
}

// CrawlAll crawls every site, isolating failures per site. Results are in
// the order of sites.
func (p *Pipeline) CrawlAll(ctx context.Context, sites []config.Site) *Report {
	results := make([]*SiteResult, len(sites))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, site := range sites {
		g.Go(func() error {
			res, _ := p.CrawlSite(ctx, site)
			results[i] = res
			return nil
		})
	}
	g.Wait()

	return &Report{Sites: results}
}
