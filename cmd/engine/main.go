package main

import (
	"fmt"
	"os"

	"case-distribution/internal/config"
	"case-distribution/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries what every subcommand needs once flags are parsed.
type cli struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "engine",
		Short: "Fair case distribution engine",
		Long: `Distributes incoming cases across the team, balancing accumulated load
while honoring specialties, leave and the pre-leave buffer.

State lives in the configured store; every command loads it, acts, and exits.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.verbose {
				cfg.Logging.Level = "debug"
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.seedCmd(),
		c.assignCmd(),
		c.resetCmd(),
		c.statusCmd(),
		c.ledgerCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
