package main

import (
	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/autumn/internal/publisher"
)

func newDigestCmd(flags *rootFlags) *cobra.Command {
	var toStdout bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build and deliver the weekly digest once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var pubs []publisher.Publisher
			if toStdout {
				pubs = append(pubs, publisher.NewStdoutPublisher())
			}
			a, err := newApp(flags, pubs...)
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			return a.runner.Weekly(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "print the digest instead of using the configured publisher")
	return cmd
}
