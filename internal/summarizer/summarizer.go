// Package summarizer turns article text into a structured report.
package summarizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ryosukesatoh/autumn/internal/config"
)

// Summarizer produces the report for one article from its headings and body.
type Summarizer interface {
	Summarize(ctx context.Context, titles []string, body string) (string, error)
}

// Func adapts a function to Summarizer.
type Func func(ctx context.Context, titles []string, body string) (string, error)

func (f Func) Summarize(ctx context.Context, titles []string, body string) (string, error) {
	return f(ctx, titles, body)
}

// Error wraps any failure of the summarization backend.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("summarizer: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err came from a summarizer.
func IsError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// ErrUnsupportedSummarizerType is returned when an unsupported summarizer type is specified
var ErrUnsupportedSummarizerType = errors.New("unsupported summarizer type")

// New creates a new summarizer based on the configuration
func New(cfg *config.Config) (Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "anthropic":
		opts := []AnthropicOption{
			WithMaxTokens(cfg.Summarizer.MaxTokens),
			WithTimeout(cfg.Summarizer.Timeout),
		}
		if cfg.Summarizer.BaseURL != "" {
			opts = append(opts, WithRequestOptions(option.WithBaseURL(cfg.Summarizer.BaseURL)))
		}
		return NewAnthropicSummarizer(cfg.Summarizer.APIKey, cfg.Summarizer.Model, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSummarizerType, cfg.Summarizer.Type)
	}
}
