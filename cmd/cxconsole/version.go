package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/cxconsole/internal/version"
)

func newVersionCmd() *cobra.Command {
	var dirty bool
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				for _, line := range version.Read().Lines() {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
						return err
					}
				}
				return nil
			}
			current := version.Current()
			if dirty {
				current = version.CurrentWithDirty()
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Module(), current)
			return err
		},
	}
	cmd.Flags().BoolVar(&dirty, "dirty", false, "include the +dirty suffix for modified builds")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print revision, commit time and Go version")
	return cmd
}
