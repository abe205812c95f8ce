package main

import (
	"fmt"
	"os"

	"github.com/danmuck/superclient/internal/config"
	"github.com/spf13/cobra"
)

const defaultPath = "cmd/superclient/config.toml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		kind   string
		output string
		input  string
		force  bool
	)

	root := &cobra.Command{
		Use:           "configgen",
		Short:         "Write and validate superclient config files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&kind, "kind", "client", "config kind: client")

	write := &cobra.Command{
		Use:   "write",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(output, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s config template to %s\n", kind, output)
			return nil
		},
	}
	write.Flags().StringVar(&output, "output", defaultPath, "output path for config template")
	write.Flags().BoolVar(&force, "force", false, "overwrite existing config file")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate an existing config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Template(kind); err != nil {
				return err
			}
			cfg, err := config.LoadClientConfig(input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Validated %s config at %s (control %s)\n", kind, input, cfg.ControlAddress())
			return nil
		},
	}
	validate.Flags().StringVar(&input, "input", defaultPath, "config path for validation")

	root.AddCommand(write, validate)
	return root
}
