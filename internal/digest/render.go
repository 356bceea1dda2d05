package digest

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Title heads every rendered digest.
const Title = "Autumn Weekly Tech Digest"

const pageStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 760px; margin: 0 auto; padding: 20px; color: #333; }
h1 { color: #1a1a2e; border-bottom: 2px solid #d35400; padding-bottom: 10px; }
.period { color: #666; }
.article { border: 1px solid #ddd; border-radius: 8px; padding: 15px; margin-bottom: 15px; }
.article h2 { margin-top: 0; font-size: 1em; color: #0f3460; word-break: break-all; }
.meta { color: #666; font-size: 0.9em; margin-bottom: 10px; }`

// Renderer turns a Digest into a standalone HTML document. Summaries are
// treated as Markdown and sanitized after conversion.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer creates a Renderer with GFM Markdown and the UGC sanitizing policy.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// RenderSummary converts one summary to sanitized HTML.
func (r *Renderer) RenderSummary(summary string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(summary), &buf); err != nil {
		return "", fmt.Errorf("digest: failed to render summary: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Render produces the HTML document for d. A nil digest renders as an
// empty week with no period line.
func (r *Renderer) Render(d *Digest) ([]byte, error) {
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	sb.WriteString(Title)
	sb.WriteString("</title><style>\n")
	sb.WriteString(pageStyle)
	sb.WriteString("\n</style></head><body>")

	sb.WriteString(fmt.Sprintf("<h1>%s</h1>", Title))
	if d == nil {
		d = &Digest{}
	} else {
		sb.WriteString(fmt.Sprintf(`<p class="period">%s to %s</p>`,
			d.Start.Format("January 2, 2006"), d.End.Format("January 2, 2006")))
	}

	if d.Empty() {
		sb.WriteString("<p>No new articles this week.</p>")
	}

	for i, e := range d.Entries {
		body, err := r.RenderSummary(e.Summary)
		if err != nil {
			return nil, err
		}
		link := html.EscapeString(e.URL)
		sb.WriteString(`<div class="article">`)
		sb.WriteString(fmt.Sprintf(`<h2>%d. <a href="%s">%s</a></h2>`, i+1, link, link))
		sb.WriteString(fmt.Sprintf(`<div class="meta">Captured %s</div>`, e.CapturedAt.Format("Mon, Jan 2 15:04")))
		sb.WriteString(body)
		sb.WriteString("</div>")
	}

	sb.WriteString("</body></html>")
	return []byte(sb.String()), nil
}

var defaultRenderer = NewRenderer()

// RenderDigest renders d with the default Renderer.
func RenderDigest(d *Digest) ([]byte, error) {
	return defaultRenderer.Render(d)
}
