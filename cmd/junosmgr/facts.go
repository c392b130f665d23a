package main

import (
	"github.com/damianoneill/junosmgr/junos"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newFactsCmd() *cobra.Command {
	var host, user, password string
	var port int

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Print the facts of a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			dc := junos.NewClient(host, user, password, junos.WithConfig(&junos.Config{Port: port}))
			if err = dc.Open(junos.WithTrace(cmd.Context(), junos.DefaultLoggingHooks)); err != nil {
				return err
			}
			defer func() { _ = dc.Close() }()

			facts, err := dc.Facts()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close() // nolint: errcheck
			return enc.Encode(facts)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "device host name or address, optionally with a :port suffix")
	cmd.Flags().StringVar(&user, "user", "", "user name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().IntVar(&port, "port", 0, "netconf port, 830 if not set")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
