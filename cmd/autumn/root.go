package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryosukesatoh/autumn/internal/config"
	"github.com/ryosukesatoh/autumn/internal/fetcher"
	"github.com/ryosukesatoh/autumn/internal/logger"
	"github.com/ryosukesatoh/autumn/internal/publisher"
	"github.com/ryosukesatoh/autumn/internal/runner"
	"github.com/ryosukesatoh/autumn/internal/summarizer"
)

const appName = "autumn"

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          appName,
		Short:        "Crawl company tech blogs, summarize new articles and send a weekly digest",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "path to config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config is read")

	root.AddCommand(
		newServeCmd(flags),
		newCrawlCmd(flags),
		newDigestCmd(flags),
		newHistoryCmd(flags),
		newLinksCmd(),
	)
	return root
}

// app is everything a command needs once the config has been loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	runner *runner.Runner
	web    *publisher.WebPublisher
}

func (f *rootFlags) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(f.envFile); err != nil {
		return nil, err
	}
	return config.Load(f.configPath)
}

// newApp loads the config and builds the runner. Any error here is fatal and
// happens before a job is scheduled. When pubs is empty the configured
// publisher is used.
func newApp(f *rootFlags, pubs ...publisher.Publisher) (*app, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}

	l, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	s, err := summarizer.New(cfg)
	if err != nil {
		return nil, err
	}

	var web *publisher.WebPublisher
	if len(pubs) == 0 {
		pub, err := publisher.New(cfg, l)
		if err != nil {
			return nil, err
		}
		web, _ = pub.(*publisher.WebPublisher)
		pubs = []publisher.Publisher{pub}
	}

	return &app{
		cfg:    cfg,
		logger: l,
		runner: runner.New(cfg, newFetcher(cfg), s, pubs, l),
		web:    web,
	}, nil
}

func newFetcher(cfg *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(cfg.Fetcher.Timeout,
		fetcher.WithUserAgent(cfg.Fetcher.UserAgent),
		fetcher.WithRetries(cfg.Fetcher.MaxRetries, 500*time.Millisecond),
	)
}
