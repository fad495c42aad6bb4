package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			info := opcua.GetVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "edgeo-opcua version %s (%s)\n", info.Version, runtime.Version())
		},
	}
}
