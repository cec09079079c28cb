package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/embedapi/internal/cli"
	"github.com/hyperjump/embedapi/internal/client"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		serverURL string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backends, cache and archive state of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := cli.OutputFormat(output)
			if format != cli.OutputText && format != cli.OutputJSON {
				return fmt.Errorf("unknown output format %q; use text or json", output)
			}
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if serverURL == "" {
				serverURL = cfg.Client.ServerURL
			}
			status, err := client.New(serverURL, cfg.Client.Timeout).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (default from client.server_url)")
	cmd.Flags().StringVarP(&output, "output", "o", string(cli.OutputText), "output format: text or json")
	return cmd
}
