package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/small-frappuccino/eventcore/pkg/app"
	"github.com/small-frappuccino/eventcore/pkg/config"
	"github.com/small-frappuccino/eventcore/pkg/events"
)

var (
	flagLogLevel   string
	flagLogFormat  string
	flagSnapshotDB string
	flagNATSURL    string
	flagRedisURL   string
	flagRelay      []string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eventcore",
		Short:         "Gateway event core: snapshot diffs as typed change events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd(), newEventsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and dispatch change events until interrupted",
		Long: `Connect to the gateway with EVENTCORE_TOKEN and dispatch change events.
Settings come from EVENTCORE_* variables, with $HOME/.local/bin/.env as a
fallback. Flags override the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")
	cmd.Flags().StringVar(&flagSnapshotDB, "snapshot-db", "", "SQLite checkpoint file, or 'default' for the cache directory")
	cmd.Flags().StringVar(&flagNATSURL, "nats-url", "", "Relay events to this NATS server")
	cmd.Flags().StringVar(&flagRedisURL, "redis-url", "", "Relay events to this Redis server")
	cmd.Flags().StringSliceVar(&flagRelay, "relay-events", nil, "Event names to relay (default: all)")
	return cmd
}

// loadConfig reads the environment, then applies flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(cmd, &cfg)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if flags.Changed("snapshot-db") {
		cfg.SnapshotDB = flagSnapshotDB
	}
	if flags.Changed("nats-url") {
		cfg.NATSURL = flagNATSURL
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = flagRedisURL
	}
	if flags.Changed("relay-events") {
		cfg.RelayEvents = flagRelay
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if v := app.AppVersion(); v != "" && v != app.Version {
				fmt.Fprintf(cmd.OutOrStdout(), "eventcore %s (app %s)\n", app.Version, v)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "eventcore %s\n", app.Version)
		},
	}
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the event names handlers can subscribe to",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(events.Names, "\n"))
		},
	}
}
