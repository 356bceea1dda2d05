// Package extract turns a fetched article page into the titles and body
// text handed to the summarizer.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxBodyChars is the safety cap applied before summarization.
const DefaultMaxBodyChars = 20000

// Content is the text extracted from one article page.
type Content struct {
	Titles []string
	Body   string
}

// Empty reports whether nothing usable was found on the page.
func (c *Content) Empty() bool {
	return len(c.Titles) == 0 && strings.TrimSpace(c.Body) == ""
}

// ParseError is returned when a page cannot be parsed as HTML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extract: failed to parse HTML: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractContent collects h1-h3 headings as titles and the text of every paragraph
// as the body, one paragraph per line.
func ExtractContent(rawHTML []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	c := &Content{}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		c.Titles = append(c.Titles, strings.TrimSpace(s.Text()))
	})

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		paragraphs = append(paragraphs, strings.TrimSpace(s.Text()))
	})
	c.Body = strings.Join(paragraphs, "\n")

	return c, nil
}

// Truncate returns s cut to at most max characters (runes). A non-positive
// max leaves s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
