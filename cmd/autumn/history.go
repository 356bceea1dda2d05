package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/autumn/internal/store"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored articles, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			st, err := store.Load(cfg.Store.Path)
			if err != nil {
				return err
			}

			records := st.Records()
			if since > 0 {
				records = st.RecordsSince(time.Now().Add(-since))
			}

			out := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintf(out, "%s  %s\n", rec.CapturedAt.Format("2006-01-02 15:04"), rec.URL)
			}
			fmt.Fprintf(out, "%d of %d articles in %s\n", len(records), st.Len(), st.Path())
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "only list articles captured within this duration")
	return cmd
}
