package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/cxconsole/internal/appconfig"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the cxconsole config file",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var path string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := appconfig.WriteDefault(path, overwrite)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", written)
			return err
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing config")
	return cmd
}
