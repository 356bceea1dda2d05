package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Sites       []Site           `yaml:"sites"`
	Concurrency int              `yaml:"concurrency"`
	RunOnStart  bool             `yaml:"run_on_start"`
	Timezone    string           `yaml:"timezone"`
	Schedule    ScheduleConfig   `yaml:"schedule"`
	Store       StoreConfig      `yaml:"store"`
	Fetcher     FetcherConfig    `yaml:"fetcher"`
	Summarizer  SummarizerConfig `yaml:"summarizer"`
	Publisher   PublisherConfig  `yaml:"publisher"`
	Digest      DigestConfig     `yaml:"digest"`
	Log         LogConfig        `yaml:"log"`
}

// Site is one company blog home page.
type Site struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Kind string `yaml:"kind"` // "html" or "feed"
}

type ScheduleConfig struct {
	Daily  string `yaml:"daily"`
	Weekly string `yaml:"weekly"`
}

type StoreConfig struct {
	Path      string        `yaml:"path"`
	OnCorrupt string        `yaml:"on_corrupt"`
	Retention time.Duration `yaml:"retention"`
}

type FetcherConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyChars int           `yaml:"max_body_chars"`
}

type SummarizerConfig struct {
	Type      string        `yaml:"type"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type PublisherConfig struct {
	Type    string        `yaml:"type"`
	Email   EmailConfig   `yaml:"email"`
	Web     WebConfig     `yaml:"web"`
	Discord DiscordConfig `yaml:"discord"`
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type EmailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	FromName string   `yaml:"from_name"`
	To       []string `yaml:"to"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

type DigestConfig struct {
	Window         time.Duration `yaml:"window"`
	Subject        string        `yaml:"subject"`
	AttachmentName string        `yaml:"attachment_name"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Corrupt store policies.
const (
	OnCorruptAbort = "abort"
	OnCorruptReset = "reset"
)

// Site kinds.
const (
	KindHTML = "html"
	KindFeed = "feed"
)

// DefaultSites is the company set crawled when the config lists none.
var DefaultSites = []Site{
	{Name: "NVIDIA", URL: "https://nvidianews.nvidia.com"},
	{Name: "OpenAI", URL: "https://openai.com/research"},
	{Name: "Meta", URL: "https://ai.meta.com/blog/"},
	{Name: "Meta-research", URL: "https://research.facebook.com"},
	{Name: "Google", URL: "https://blog.google/technology/ai/"},
	{Name: "Microsoft", URL: "https://blogs.microsoft.com"},
	{Name: "Apple", URL: "https://machinelearning.apple.com/"},
	{Name: "Anthropic", URL: "https://www.anthropic.com/news"},
	{Name: "Cursor", URL: "https://cursor.com/blog"},
}

// ValidationError reports a configuration problem that must stop the
// process before any job is scheduled.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a fatal configuration error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func unexpanded(s string) bool {
	return envVarRegex.MatchString(s)
}

func setDefaults(cfg *Config) {
	if len(cfg.Sites) == 0 {
		cfg.Sites = append([]Site(nil), DefaultSites...)
	}
	for i := range cfg.Sites {
		if cfg.Sites[i].Kind == "" {
			cfg.Sites[i].Kind = KindHTML
		}
		if cfg.Sites[i].Name == "" {
			cfg.Sites[i].Name = cfg.Sites[i].URL
		}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Schedule.Daily == "" {
		cfg.Schedule.Daily = "0 9 * * *"
	}
	if cfg.Schedule.Weekly == "" {
		cfg.Schedule.Weekly = "0 18 * * 5"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "storage.json"
	}
	if cfg.Store.OnCorrupt == "" {
		cfg.Store.OnCorrupt = OnCorruptAbort
	}
	if cfg.Fetcher.Timeout == 0 {
		cfg.Fetcher.Timeout = 10 * time.Second
	}
	if cfg.Fetcher.MaxBodyChars == 0 {
		cfg.Fetcher.MaxBodyChars = 20000
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "anthropic"
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Summarizer.MaxTokens == 0 {
		cfg.Summarizer.MaxTokens = 2048
	}
	if cfg.Summarizer.Timeout == 0 {
		cfg.Summarizer.Timeout = 120 * time.Second
	}
	if cfg.Publisher.Type == "" {
		cfg.Publisher.Type = "stdout"
	}
	if cfg.Publisher.Web.Addr == "" {
		cfg.Publisher.Web.Addr = ":8080"
	}
	if cfg.Publisher.Email.SMTPHost == "" {
		cfg.Publisher.Email.SMTPHost = "smtp.gmail.com"
	}
	if cfg.Publisher.Email.SMTPPort == 0 {
		cfg.Publisher.Email.SMTPPort = 587
	}
	if cfg.Publisher.Email.FromName == "" {
		cfg.Publisher.Email.FromName = "Autumn"
	}
	if cfg.Publisher.Email.From == "" {
		cfg.Publisher.Email.From = cfg.Publisher.Email.Username
	}
	if cfg.Digest.Window == 0 {
		cfg.Digest.Window = 7 * 24 * time.Hour
	}
	if cfg.Digest.Subject == "" {
		cfg.Digest.Subject = "Your Weekly Tech Digest – Autumn"
	}
	if cfg.Digest.AttachmentName == "" {
		cfg.Digest.AttachmentName = "weekly_report.html"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Sites))
	for i, s := range cfg.Sites {
		field := fmt.Sprintf("sites[%d]", i)
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid(field+".url", "must be an absolute http(s) URL, got %q", s.URL)
		}
		if s.Kind != KindHTML && s.Kind != KindFeed {
			return invalid(field+".kind", "must be %q or %q, got %q", KindHTML, KindFeed, s.Kind)
		}
		if seen[s.Name] {
			return invalid(field+".name", "duplicates site %q", s.Name)
		}
		seen[s.Name] = true
	}
	if _, err := cron.ParseStandard(cfg.Schedule.Daily); err != nil {
		return invalid("schedule.daily", "is not a valid cron expression: %v", err)
	}
	if _, err := cron.ParseStandard(cfg.Schedule.Weekly); err != nil {
		return invalid("schedule.weekly", "is not a valid cron expression: %v", err)
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return invalid("timezone", "is unknown: %v", err)
		}
	}
	switch cfg.Store.OnCorrupt {
	case OnCorruptAbort, OnCorruptReset:
	default:
		return invalid("store.on_corrupt", "must be %q or %q, got %q", OnCorruptAbort, OnCorruptReset, cfg.Store.OnCorrupt)
	}
	if cfg.Store.Retention < 0 {
		return invalid("store.retention", "must not be negative")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return invalid("fetcher.max_retries", "must not be negative")
	}
	if cfg.Summarizer.Type != "anthropic" {
		return invalid("summarizer.type", "%q is unsupported (supported: anthropic)", cfg.Summarizer.Type)
	}
	if cfg.Summarizer.APIKey == "" || unexpanded(cfg.Summarizer.APIKey) {
		return invalid("summarizer.api_key", "is required (set ANTHROPIC_API_KEY env var)")
	}
	switch cfg.Publisher.Type {
	case "stdout", "email", "web", "discord":
	default:
		return invalid("publisher.type", "%q is unsupported (supported: stdout, email, web, discord)", cfg.Publisher.Type)
	}
	if cfg.Publisher.Type == "discord" {
		if cfg.Publisher.Discord.WebhookURL == "" || unexpanded(cfg.Publisher.Discord.WebhookURL) {
			return invalid("publisher.discord.webhook_url", "is required for discord publisher")
		}
	}
	if cfg.Publisher.Type == "email" {
		e := cfg.Publisher.Email
		if e.Username == "" || unexpanded(e.Username) {
			return invalid("publisher.email.username", "is required for email publisher (set EMAIL_USER env var)")
		}
		if e.Password == "" || unexpanded(e.Password) {
			return invalid("publisher.email.password", "is required for email publisher (set EMAIL_PASS env var)")
		}
		if len(e.To) == 0 {
			return invalid("publisher.email.to", "is required for email publisher (set RECIPIENT_EMAIL env var)")
		}
		for _, to := range e.To {
			if to == "" || unexpanded(to) {
				return invalid("publisher.email.to", "contains an empty recipient")
			}
		}
	}
	return nil
}

// Location returns the configured schedule timezone, local time by default.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SitesNamed returns the configured sites whose names are listed. An empty
// list returns every site.
func (c *Config) SitesNamed(names []string) ([]Site, error) {
	if len(names) == 0 {
		return c.Sites, nil
	}
	byName := make(map[string]Site, len(c.Sites))
	for _, s := range c.Sites {
		byName[s.Name] = s
	}
	out := make([]Site, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("config: unknown site %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment. A missing
// file is not an error; variables already set are left untouched.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the config file, expands environment variables, applies defaults,
// and validates the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
