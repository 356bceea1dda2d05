package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ryosukesatoh/autumn/internal/digest"
)

const lineWidth = 72

// StdoutPublisher prints the digest to stdout.
type StdoutPublisher struct {
	out io.Writer
}

// NewStdoutPublisher creates a StdoutPublisher writing to os.Stdout.
func NewStdoutPublisher() *StdoutPublisher {
	return &StdoutPublisher{out: os.Stdout}
}

func (p *StdoutPublisher) Publish(_ context.Context, d *digest.Digest) error {
	if d.Empty() {
		return nil
	}
	w := p.out

	fmt.Fprintln(w, strings.Repeat("=", lineWidth))
	fmt.Fprintln(w, center(digest.Title, lineWidth))
	fmt.Fprintln(w, center(fmt.Sprintf("%s - %s", d.Start.Format("2006-01-02"), d.End.Format("2006-01-02")), lineWidth))
	fmt.Fprintln(w, strings.Repeat("=", lineWidth))
	fmt.Fprintln(w)

	for i, e := range d.Entries {
		fmt.Fprintln(w, strings.Repeat("-", lineWidth))
		fmt.Fprintln(w, runewidth.Truncate(fmt.Sprintf("%d. %s", i+1, e.URL), lineWidth, "…"))
		fmt.Fprintf(w, "   Captured: %s\n", e.CapturedAt.Format("2006-01-02 15:04"))
		fmt.Fprintln(w)
		for _, line := range strings.Split(e.Summary, "\n") {
			fmt.Fprintf(w, "   %s\n", line)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("=", lineWidth))
	return nil
}

// center pads s on the left so it sits in the middle of a width-column line.
// Width is measured in terminal cells.
func center(s string, width int) string {
	pad := (width - runewidth.StringWidth(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}
