package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = `You are Autumn, a reliable and authentic news reporter for STEM students.
Engineering and computer science students rely on you to learn about the latest advancements
in their field: what to focus on and which new opportunities they can take advantage of.

You are given the headings and text of one company blog article. Your job:
1. Ignore duplicated text, boilerplate and navigation.
2. Identify ALL new technological advancements, features, updates, products and technologies mentioned.
3. For each advancement, extract what it is, what problem it solves, the field it matters in
   (AI, cloud, hardware, robotics, etc.) and why it is important for engineering or CS students.
4. Write a concise summary of 200 to 250 words.

OUTPUT FORMAT:
=== REPORT START ===
[Company Name & Brief Relevance]
1. [Advancement Title]
- Description:
- Why it matters:
2. [Advancement Title]
- Description:
- Why it matters:

=== DEFINITIONS ===
- Term: Definition

=== Conclusion ===
- State whether a technology or feature appeared strongly, based on how often it is mentioned in the article.
=== REPORT END ===

Only use the article text you are given. Do not guess or make assumptions of your own.`

// AnthropicSummarizer uses the Anthropic Messages API to summarize articles.
type AnthropicSummarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
	reqOpts   []option.RequestOption
}

// AnthropicOption configures an AnthropicSummarizer.
type AnthropicOption func(*AnthropicSummarizer)

// WithMaxTokens caps the length of the generated report.
func WithMaxTokens(n int) AnthropicOption {
	return func(s *AnthropicSummarizer) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTimeout bounds a single Summarize call, retries included.
func WithTimeout(d time.Duration) AnthropicOption {
	return func(s *AnthropicSummarizer) {
		s.timeout = d
	}
}

// WithRequestOptions passes extra options to the API client, e.g. a base URL.
func WithRequestOptions(opts ...option.RequestOption) AnthropicOption {
	return func(s *AnthropicSummarizer) {
		s.reqOpts = append(s.reqOpts, opts...)
	}
}

// NewAnthropicSummarizer creates a summarizer backed by the Messages API.
func NewAnthropicSummarizer(apiKey, model string, opts ...AnthropicOption) *AnthropicSummarizer {
	s := &AnthropicSummarizer{
		model:     model,
		maxTokens: 2048,
		timeout:   120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}, s.reqOpts...)
	s.client = anthropic.NewClient(clientOpts...)
	return s
}

func (s *AnthropicSummarizer) Summarize(ctx context.Context, titles []string, body string) (string, error) {
	if strings.TrimSpace(body) == "" && len(titles) == 0 {
		return "", &Error{Err: errors.New("nothing to summarize")}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(titles, body))),
		},
	})
	if err != nil {
		return "", &Error{Err: fmt.Errorf("anthropic request failed: %w", err)}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	report := strings.TrimSpace(sb.String())
	if report == "" {
		return "", &Error{Err: errors.New("anthropic returned an empty response")}
	}
	return report, nil
}

func buildPrompt(titles []string, body string) string {
	var sb strings.Builder
	sb.WriteString("Headings:\n")
	if len(titles) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, t := range titles {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	sb.WriteString("\nArticle text:\n")
	sb.WriteString(body)
	return sb.String()
}
