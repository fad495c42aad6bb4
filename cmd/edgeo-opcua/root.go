// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edgeo-scada/opcua-typesys/config"
)

// globals holds the persistent flags and what PersistentPreRunE derives
// from them.
type globals struct {
	configFile string
	snapshot   string
	timeout    time.Duration
	verbose    bool
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "edgeo-opcua",
		Short: "OPC UA data type and index range tool",
		Long: `Inspect OPC UA data type hierarchies and address array values with
index ranges, against an address space described by a YAML snapshot.

Examples:
  edgeo-opcua range read -T Double -V "[1, 2, 3]" -r 1:2
  edgeo-opcua range read --snapshot plant.yaml -n "ns=1;s=Temperatures" -r 0:1
  edgeo-opcua types --snapshot plant.yaml --root i=22 --definitions
  edgeo-opcua serve --config edgeo-opcua.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configFile, "config", "c", "", "Configuration file (YAML); OPCUA_ environment variables override it")
	flags.StringVar(&g.snapshot, "snapshot", "", "Address space snapshot file (YAML)")
	flags.DurationVarP(&g.timeout, "timeout", "t", 0, "Operation timeout (default: discovery.timeout from the configuration)")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level (default: log.level from the configuration)")

	rootCmd.AddCommand(newRangeCmd(g))
	rootCmd.AddCommand(newTypesCmd(g))
	rootCmd.AddCommand(newServeCmd(g))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func (g *globals) init(cmd *cobra.Command) error {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.verbose {
		cfg.Log.Level = zerolog.LevelDebugValue
	}
	if g.snapshot == "" {
		g.snapshot = cfg.Server.Snapshot
	}
	if g.timeout <= 0 {
		g.timeout = cfg.Discovery.Timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	g.cfg = cfg
	g.logger, err = newLogger(cmd.ErrOrStderr(), cfg.Log)
	return err
}
