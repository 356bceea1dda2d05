package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCrawlCmd(flags *rootFlags) *cobra.Command {
	var siteNames []string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run the daily crawl once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			sites, err := a.cfg.SitesNamed(siteNames)
			if err != nil {
				return err
			}

			report, err := a.runner.Crawl(cmd.Context(), sites)
			if report != nil {
				out := cmd.OutOrStdout()
				for _, s := range report.Sites {
					status := "ok"
					if s.Err != nil {
						status = "failed: " + s.Err.Error()
					}
					fmt.Fprintf(out, "%-16s new=%d failed=%d known=%d %s\n",
						s.Site, s.Succeeded(), s.Failed(), s.Known, status)
				}
				fmt.Fprintf(out, "total: %d new, %d failed\n", report.Succeeded(), report.Failed())
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&siteNames, "site", nil, "only crawl the named sites (repeatable)")
	return cmd
}
