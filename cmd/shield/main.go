package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storyforge/shield/cmd/shield/commands"
	"github.com/storyforge/shield/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &commands.Options{}

	rootCmd := &cobra.Command{
		Use:   "shield",
		Short: "Trust and secret-lifecycle service for the story platform",
		Long: `shield fronts the story platform with input validation, token
verification, secret management, envelope encryption and security
monitoring.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.Logger = logging.New("shield", opts.Debug)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "shield.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewServeCommand(opts),
		commands.NewDoctorCommand(opts),
	)

	return rootCmd.Execute()
}
