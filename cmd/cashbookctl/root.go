package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
)

// cli carries the settings every subcommand reads. Flags, CASHBOOK_*
// environment variables and an optional config file feed the same viper.
type cli struct {
	v   *viper.Viper
	now func() time.Time
}

func newRootCmd() *cobra.Command {
	return newCLI(time.Now).rootCmd()
}

func newCLI(now func() time.Time) *cli {
	return &cli{v: viper.New(), now: now}
}

func (c *cli) rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "cashbookctl",
		Short: "Build CashBook reports and exports from a transaction dump",
		Long: `cashbookctl runs the CashBook report and export pipeline offline.
It reads a JSON dump of stored transaction records (or a CSV export),
normalizes it and prints a report or writes an export file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			c.v.SetConfigFile(configFile)
			if err := c.v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			return nil
		},
	}

	c.v.SetEnvPrefix("CASHBOOK")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	c.v.SetDefault("timezone", "Asia/Dhaka")
	c.v.SetDefault("log-level", "warn")

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("timezone", "Asia/Dhaka", "IANA zone reports are computed in")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = c.v.BindPFlag("timezone", flags.Lookup("timezone"))
	_ = c.v.BindPFlag("log-level", flags.Lookup("log-level"))

	root.AddCommand(c.reportCmd(), c.exportCmd(), c.tokenCmd())
	return root
}

func (c *cli) location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.v.GetString("timezone"))
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return loc, nil
}

func (c *cli) logger() *zap.Logger {
	return observability.NewLogger(c.v.GetString("log-level"))
}
