// Package links discovers article URLs on a company blog home page.
package links

import (
	"strings"
	"unicode/utf8"
)

// MinArticleURLLength is the shortest URL considered an article.
const MinArticleURLLength = 25

// MinSlashCount is the number of '/' (scheme slashes included) a URL needs
// once trailing slashes are trimmed to be accepted as a deep slug.
const MinSlashCount = 4

var (
	denylist = []string{
		"signup", "tag", "category", "author", "login",
		"privacy", "terms", "search", "events", "jobs",
		"careers", "press-contact",
	}
	yearTokens = []string{"2024", "2025", "2023", "2022"}
	allowlist  = []string{
		"blog", "post", "news", "research", "article",
		"stories", "insights", "update", "announcements",
	}
)

// IsArticle decides whether url looks like an article rather than
// navigation. The first matching rule wins:
//
//  1. shorter than MinArticleURLLength characters: reject
//  2. contains a denylisted word (case-insensitive): reject
//  3. contains a year token: accept
//  4. contains an allowlisted word (case-insensitive): accept
//  5. at least MinSlashCount slashes after trimming trailing ones: accept
//  6. otherwise reject
func IsArticle(url string) bool {
	if utf8.RuneCountInString(url) < MinArticleURLLength {
		return false
	}

	lower := strings.ToLower(url)
	if containsAny(lower, denylist) {
		return false
	}
	if containsAny(url, yearTokens) {
		return true
	}
	if containsAny(lower, allowlist) {
		return true
	}
	return strings.Count(strings.TrimRight(url, "/"), "/") >= MinSlashCount
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
