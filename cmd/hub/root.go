// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the DMRHub example's cmd/root.go cobra wiring: a root
// command with a --config persistent flag, a serve subcommand that does
// the real work, and independent version/config-check subcommands for
// operators.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wanhive/hub-sub001/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

var configPath string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hub",
		Short:         "Overlay message-routing hub",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newConfigCheckCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hub version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("hub %s (%s)\n", version, commit)
			return nil
		},
	}
}

func newConfigCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config-check",
		Short: "Load and validate the configuration, then print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", opts)
			return nil
		},
	}
}
