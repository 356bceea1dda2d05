package links

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/ryosukesatoh/autumn/internal/fetcher"
)

// FetchError means the home page itself could not be retrieved.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("links: failed to fetch home page %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Extractor fetches a home page and returns the article links found on it.
type Extractor struct {
	fetcher fetcher.Fetcher
}

// NewExtractor creates an Extractor that fetches home pages with f.
func NewExtractor(f fetcher.Fetcher) *Extractor {
	return &Extractor{fetcher: f}
}

// ExtractArticleLinks fetches an HTML home page and returns the de-duplicated,
// sorted set of anchors accepted by IsArticle.
func (e *Extractor) ExtractArticleLinks(ctx context.Context, homeURL string) ([]string, error) {
	raw, err := e.fetcher.FetchPage(ctx, homeURL)
	if err != nil {
		return nil, &FetchError{URL: homeURL, Err: err}
	}
	return ParseArticleLinks(homeURL, raw)
}

// ExtractFeedLinks fetches an RSS/Atom/JSON feed and returns its item links.
// Feed items are articles by construction, so IsArticle is not applied.
func (e *Extractor) ExtractFeedLinks(ctx context.Context, feedURL string) ([]string, error) {
	raw, err := e.fetcher.FetchPage(ctx, feedURL)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	return ParseFeedLinks(feedURL, raw)
}

// ParseArticleLinks is the parsing half of ExtractArticleLinks.
func ParseArticleLinks(homeURL string, rawHTML []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("links: failed to parse %s: %w", homeURL, err)
	}

	set := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, ok := resolve(homeURL, href)
		if !ok || !IsArticle(link) {
			return
		}
		set[link] = struct{}{}
	})
	return sortedKeys(set), nil
}

// ParseFeedLinks is the parsing half of ExtractFeedLinks.
func ParseFeedLinks(feedURL string, raw []byte) ([]string, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("links: failed to parse feed %s: %w", feedURL, err)
	}

	set := make(map[string]struct{})
	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		if link, ok := resolve(feedURL, strings.TrimSpace(item.Link)); ok {
			set[link] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

// resolve skips fragment and login links and joins root-relative hrefs onto
// the home URL. Anything else is returned as is.
func resolve(homeURL, href string) (string, bool) {
	if strings.Contains(href, "#") || strings.Contains(href, "login") {
		return "", false
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimRight(homeURL, "/") + href, true
	}
	return href, true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
