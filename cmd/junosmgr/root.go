package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var level string

	rootCmd := &cobra.Command{
		Use:           "junosmgr",
		Short:         "Manage the configuration of Junos devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(level)
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&level, "log-level", "warning", "logging level: debug, info, warning or error")

	rootCmd.AddCommand(newFactsCmd(), newApplyCmd(), newSimulateCmd())
	return rootCmd
}
