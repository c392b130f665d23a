package main

import (
	"fmt"

	"github.com/damianoneill/junosmgr/junos"
	"github.com/damianoneill/junosmgr/netconf/client"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newApplyCmd() *cobra.Command {
	var file, metricsOut string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a templated configuration change to a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			change, err := loadChange(file)
			if err != nil {
				return err
			}

			ctx := junos.WithTrace(cmd.Context(), junos.DefaultLoggingHooks)
			if metricsOut != "" {
				reg := prometheus.NewRegistry()
				hooks, herr := client.NewMetricHooks(reg)
				if herr != nil {
					return herr
				}
				ctx = client.WithClientTrace(ctx, hooks)
				defer func() {
					err = multierr.Append(err, prometheus.WriteToTextfile(metricsOut, reg))
				}()
			}

			dc := junos.NewClient(change.Host, change.Username, change.Password, junos.WithConfig(&junos.Config{Port: change.Port}))
			if err = dc.Open(ctx); err != nil {
				return err
			}
			defer func() { _ = dc.Close() }()

			return apply(cmd, dc, change)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "change file")
	cmd.Flags().StringVar(&metricsOut, "metrics-out", "", "write netconf client metrics to this file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func apply(cmd *cobra.Command, dc *junos.DeviceClient, change *Change) error {
	out := cmd.OutOrStdout()

	if err := dc.OpenConfig(change.Mode); err != nil {
		return err
	}
	if err := dc.LoadConfigTemplate(change.Template, change.Vars); err != nil {
		return multierr.Append(err, dc.CloseConfig())
	}

	diff, err := dc.Diff()
	if err != nil {
		return multierr.Append(err, dc.CloseConfig())
	}
	if diff == "" {
		fmt.Fprintln(out, "no changes")
	} else {
		fmt.Fprintln(out, diff)
	}

	if change.CheckOnly {
		if err = dc.CommitCheck(); err != nil {
			return multierr.Append(err, dc.CloseConfig())
		}
		fmt.Fprintln(out, "commit check succeeded")
		return dc.CloseConfig()
	}

	if err = dc.CommitAndClose(change.commitOptions()...); err != nil {
		return err
	}
	log.WithFields(log.Fields{"target": dc.Target(), "comment": change.Commit.Comment}).Info("Committed")
	fmt.Fprintln(out, "commit complete")
	return nil
}
