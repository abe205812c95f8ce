package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/superclient/internal/client"
	"github.com/danmuck/superclient/internal/observability"
	"github.com/danmuck/superclient/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath  string
	verbose     bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:   "superclient <server address> <server port> [options] [ansi]",
		Short: "Answer server challenges over an unreliable datagram session",
		Long: `superclient negotiates a session with the challenge server over TCP,
then answers its challenges over UDP with optional encryption (e),
multipart messages (m) and parity checks (p). Pass n as options to disable
all three. Pass 0 as ansi to disable colors.`,
		Args:          cobra.MaximumNArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, args)
			if err != nil {
				return err
			}

			logger := observability.InitLogger("superclient")
			if cfg.Verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				logger = logger.Level(zerolog.DebugLevel)
			}
			logger.Debug().
				Str("control", cfg.ControlAddress()).
				Str("features", cfg.Session.Features.String()).
				Msg("starting")

			_, err = client.New(cfg, cmd.OutOrStdout(), logger).Run(cmd.Context())
			return err
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "TOML config file; positional arguments override it")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every message sent and received")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	return cmd
}

// resolveConfig layers defaults, the config file, positional arguments and
// flags, in that order.
func resolveConfig(cmd *cobra.Command, opts rootOptions, args []string) (client.Config, error) {
	cfg := client.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := loadFileConfig(opts.configPath, cfg)
		if err != nil {
			return client.Config{}, err
		}
		cfg = loaded
	}

	if len(args) >= 1 {
		cfg.Address = strings.TrimSpace(args[0])
	}
	if len(args) >= 2 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return client.Config{}, fmt.Errorf("%w: port %q", client.ErrInvalidArgs, args[1])
		}
		cfg.ControlPort = port
	}
	if len(args) >= 3 {
		cfg.Session.Features = session.ParseFeatures(args[2])
	}
	if len(args) >= 4 {
		ansi, err := strconv.Atoi(args[3])
		if err != nil {
			return client.Config{}, fmt.Errorf("%w: ansi %q", client.ErrInvalidArgs, args[3])
		}
		cfg.ANSI = ansi != 0
	}

	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = strings.TrimSpace(opts.metricsAddr)
	}
	return cfg, cfg.Validate()
}
