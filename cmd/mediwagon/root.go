package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ashahealth/mediwagon/internal/config"
	"github.com/ashahealth/mediwagon/internal/observability"
)

var version = "dev"

// cli carries what every subcommand needs after flag parsing.
type cli struct {
	cfg config.Config
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "mediwagon",
		Short: "MediWagon - the Asha patient companion",
		Long: `MediWagon runs the Asha patient companion.

Sign up or sign in from the terminal, describe your symptoms to Asha in a
terminal dashboard, or serve the browser dashboard with voice input.`,
		Version:      version,
		SilenceUsage: true,
	}

	configPath := cmd.PersistentFlags().String("config", "", "YAML config file (overrides MEDIWAGON_CONFIG)")
	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if *configPath != "" {
			if err := os.Setenv("MEDIWAGON_CONFIG", *configPath); err != nil {
				return err
			}
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if *debugLogging {
			cfg.LogLevel = "debug"
		}
		observability.Configure(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		c.cfg = cfg
		return nil
	}

	cmd.AddCommand(newServeCommand(c))
	cmd.AddCommand(newMockBackendCommand())
	cmd.AddCommand(newRegisterCommand(c))
	cmd.AddCommand(newLoginCommand(c))
	cmd.AddCommand(newLogoutCommand(c))
	cmd.AddCommand(newWhoamiCommand(c))
	cmd.AddCommand(newChatCommand(c))
	cmd.AddCommand(newSummarizeCommand(c))
	cmd.AddCommand(newRemindCommand(c))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
