package crawler

import (
	"errors"
	"fmt"
)

// Stage is where processing of a candidate link stopped.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageSummarize Stage = "summarize"
	StageStore     Stage = "store"
	StageDone      Stage = "done"
)

// SiteError means the candidate list for a site could not be built, so none
// of its links were processed.
type SiteError struct {
	Site string
	URL  string
	Err  error
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("crawler: site %s (%s) failed: %v", e.Site, e.URL, e.Err)
}

func (e *SiteError) Unwrap() error { return e.Err }

// IsSiteError reports whether err is a SiteError.
func IsSiteError(err error) bool {
	var se *SiteError
	return errors.As(err, &se)
}

// ItemResult is the outcome for one new candidate link. Err is nil exactly
// when Stage is StageDone.
type ItemResult struct {
	URL     string
	Stage   Stage
	Summary string
	Err     error
}

func (r ItemResult) OK() bool { return r.Err == nil }

// SiteResult collects what one CrawlOne call did.
type SiteResult struct {
	Site       string
	HomeURL    string
	Candidates int

	// Known counts candidates skipped because the store already had them.
	Known int

	Items []ItemResult

	// Err is set when the site failed as a whole or the crawl was cancelled.
	Err error
}

// Summaries returns the summaries produced for this site, in crawl order.
func (r *SiteResult) Summaries() []string {
	out := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		if it.OK() {
			out = append(out, it.Summary)
		}
	}
	return out
}

func (r *SiteResult) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.OK() {
			n++
		}
	}
	return n
}

func (r *SiteResult) Failed() int {
	return len(r.Items) - r.Succeeded()
}

// Report aggregates the results of crawling several sites.
type Report struct {
	Sites []*SiteResult
}

// Summaries returns every produced summary across sites, in site order.
func (r *Report) Summaries() []string {
	var out []string
	for _, s := range r.Sites {
		out = append(out, s.Summaries()...)
	}
	return out
}

// Succeeded is the number of articles summarized and stored.
func (r *Report) Succeeded() int {
	n := 0
	for _, s := range r.Sites {
		n += s.Succeeded()
	}
	return n
}

// Failed is the number of articles that failed at some stage.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Sites {
		n += s.Failed()
	}
	return n
}

// FailedSites returns the sites that could not be crawled at all.
func (r *Report) FailedSites() []*SiteResult {
	var out []*SiteResult
	for _, s := range r.Sites {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}
