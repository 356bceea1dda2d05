package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ryosukesatoh/autumn/internal/digest"
	"github.com/ryosukesatoh/autumn/internal/retry"
)

// Discord webhook limits, counted in characters.
const (
	maxEmbedsPerMessage = 10
	maxMessageChars     = 6000
	maxTitleChars       = 256
	maxDescriptionChars = 4096

	autumnOrange = 0xD35400
)

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	URL         string              `json:"url,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordPublisher posts the digest to a Discord channel webhook.
type DiscordPublisher struct {
	webhookURL  string
	username    string
	client      *http.Client
	retryConfig retry.Config
	batchDelay  time.Duration
}

// DiscordOption configures a DiscordPublisher.
type DiscordOption func(*DiscordPublisher)

// WithDiscordClient replaces the HTTP client used for webhook calls.
func WithDiscordClient(c *http.Client) DiscordOption {
	return func(d *DiscordPublisher) { d.client = c }
}

// WithDiscordUsername overrides the name the webhook posts as.
func WithDiscordUsername(name string) DiscordOption {
	return func(d *DiscordPublisher) { d.username = name }
}

// WithDiscordBatchDelay sets the pause between webhook messages of one digest.
func WithDiscordBatchDelay(d time.Duration) DiscordOption {
	return func(p *DiscordPublisher) { p.batchDelay = d }
}

// NewDiscordPublisher creates a new DiscordPublisher.
func NewDiscordPublisher(webhookURL string, opts ...DiscordOption) *DiscordPublisher {
	d := &DiscordPublisher{
		webhookURL: webhookURL,
		username:   "Autumn",
		client:     &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.Config{
			MaxRetries: 3,
			BaseDelay:  1 * time.Second,
		},
		batchDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish sends an overview embed followed by one embed per article, split
// into as many webhook messages as Discord's limits require.
func (d *DiscordPublisher) Publish(ctx context.Context, dg *digest.Digest) error {
	if dg.Empty() {
		return nil
	}
	batches := batchEmbeds(buildEmbeds(dg))

	for i, batch := range batches {
		payload := discordWebhookPayload{Username: d.username, Embeds: batch}
		err := retry.WithBackoff(ctx, d.retryConfig, func(ctx context.Context) error {
			return d.post(ctx, payload)
		})
		if err != nil {
			return fmt.Errorf("discord: failed to send message %d of %d: %w", i+1, len(batches), err)
		}

		if i < len(batches)-1 && d.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.batchDelay):
			}
		}
	}
	return nil
}

func buildEmbeds(dg *digest.Digest) []discordEmbed {
	embeds := make([]discordEmbed, 0, len(dg.Entries)+1)

	embeds = append(embeds, discordEmbed{
		Title: digest.Title,
		Description: fmt.Sprintf("%d new articles from %s to %s.",
			len(dg.Entries), dg.Start.Format("Jan 2"), dg.End.Format("Jan 2, 2006")),
		Color:     autumnOrange,
		Timestamp: dg.End.Format(time.RFC3339),
	})

	for i, e := range dg.Entries {
		embeds = append(embeds, discordEmbed{
			Title:       truncate(fmt.Sprintf("%d. %s", i+1, articleTitle(e.URL)), maxTitleChars),
			URL:         e.URL,
			Description: truncate(e.Summary, maxDescriptionChars),
			Color:       autumnOrange,
			Fields: []discordEmbedField{
				{Name: "Source", Value: sourceHost(e.URL), Inline: true},
				{Name: "Captured", Value: e.CapturedAt.Format("2006-01-02 15:04"), Inline: true},
			},
		})
	}
	embeds[len(embeds)-1].Footer = &discordEmbedFooter{Text: "Autumn · " + dg.End.Format("2006-01-02")}

	return embeds
}

// articleTitle turns the last path segment of an article URL into a
// readable heading, falling back to the URL itself.
func articleTitle(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return raw
	}
	slug := path[strings.LastIndex(path, "/")+1:]
	slug = strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	if slug == "" {
		return raw
	}
	return slug
}

func sourceHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// batchEmbeds groups embeds so no message exceeds maxEmbedsPerMessage
// embeds or maxMessageChars characters.
func batchEmbeds(embeds []discordEmbed) [][]discordEmbed {
	var batches [][]discordEmbed
	var current []discordEmbed
	currentChars := 0

	for _, e := range embeds {
		ec := embedCharCount(e)

		if len(current) > 0 && (len(current) >= maxEmbedsPerMessage || currentChars+ec > maxMessageChars) {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}

		current = append(current, e)
		currentChars += ec
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (d *DiscordPublisher) post(ctx context.Context, payload discordWebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if !retry.HTTPStatusRetryable(resp.StatusCode) {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}

// truncate shortens s to at most max characters, preferring to end on a
// sentence boundary in the second half of the kept text.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	cut := string([]rune(s)[:max-1])
	if idx := strings.LastIndexAny(cut, ".!?"); idx > len(cut)/2 {
		return cut[:idx+1]
	}
	return cut + "…"
}

func embedCharCount(e discordEmbed) int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	for _, f := range e.Fields {
		n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
	}
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}
	return n
}
