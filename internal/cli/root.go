// Package cli implements the journeysim command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratamed/journeysim/internal/config"
	"github.com/stratamed/journeysim/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "journeysim",
	Short: "Synthetic healthcare journey generator",
	Long: `journeysim generates deterministic synthetic healthcare data by
simulating entity journeys: scenario specs describe the events an entity
moves through, cross-vertical triggers spawn linked entities in other
verticals, and a fixed root seed reproduces the full output byte for byte.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./journeysim.yaml, then $HOME/.journeysim/journeysim.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not load config: %v\n", err)
		os.Exit(1)
	}

	log = logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(log)
}
