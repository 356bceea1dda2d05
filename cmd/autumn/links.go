package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/autumn/internal/config"
	"github.com/ryosukesatoh/autumn/internal/fetcher"
	"github.com/ryosukesatoh/autumn/internal/links"
)

func newLinksCmd() *cobra.Command {
	var (
		kind    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "links <url>",
		Short: "Print the article links found on a home page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*timeout)
			defer cancel()

			e := links.NewExtractor(fetcher.NewHTTPFetcher(timeout))
			var (
				found []string
				err   error
			)
			switch kind {
			case config.KindHTML:
				found, err = e.ExtractArticleLinks(ctx, args[0])
			case config.KindFeed:
				found, err = e.ExtractFeedLinks(ctx, args[0])
			default:
				return fmt.Errorf("unknown kind %q (want %q or %q)", kind, config.KindHTML, config.KindFeed)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, l := range found {
				fmt.Fprintln(out, l)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", config.KindHTML, "home page kind: html or feed")
	cmd.Flags().DurationVar(&timeout, "timeout", fetcher.DefaultTimeout, "per-request timeout")
	return cmd
}
