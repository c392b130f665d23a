package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/damianoneill/junosmgr/junos/junostest"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	var listen, user, password, config string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated Junos device until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			host, p, err := net.SplitHostPort(listen)
			if err != nil {
				return errors.Wrap(err, "invalid listen address")
			}
			port, err := strconv.Atoi(p)
			if err != nil {
				return errors.Wrap(err, "invalid listen port")
			}

			var opts []junostest.Option
			if config != "" {
				opts = append(opts, junostest.WithConfiguration(config))
			}
			d, err := junostest.NewDevice(cmd.Context(), host, port, user, password, opts...)
			if err != nil {
				return err
			}
			defer d.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "simulated device listening on %s\n", d.Address())
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "localhost:8830", "address to listen on")
	cmd.Flags().StringVar(&user, "user", "root", "user name accepted by the device")
	cmd.Flags().StringVar(&password, "password", "", "password accepted by the device")
	cmd.Flags().StringVar(&config, "config", "", "initial active configuration")
	return cmd
}
