// Command laminar is the CLI entry point: it serves the engine (laminar
// run) or talks to a running server's admin API (laminar queue/abort).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	cfgFile string
)

func main() {
	cmd := &cobra.Command{
		Use:   "laminar",
		Short: "A minimal, single-process continuous-integration job engine.",
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/laminar/laminar.yaml)")
	cmd.PersistentFlags().String("home", "", "laminar home directory (cfg/, var/, archive/ live here)")
	cmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = viper.BindPFlag("home", cmd.PersistentFlags().Lookup("home"))
	_ = viper.BindPFlag("log-format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))

	cmd.AddCommand(runCommand())
	cmd.AddCommand(queueCommand())
	cmd.AddCommand(abortCommand())
	cmd.AddCommand(versionCommand())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the laminar version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

func initConfig(cmd *cobra.Command) error {
	if err := cmd.ParseFlags(os.Args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	viper.SetEnvPrefix("laminar")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME/.config/laminar")
		viper.SetConfigType("yaml")
		viper.SetConfigName("laminar")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
