// Package cmd provides the ideamark command-line interface.
//
// Configuration is read once at startup from, highest priority first:
//
//  1. command-line flags (--port, --host, ...)
//  2. IDEAMARK_* environment variables (IDEAMARK_PORT, IDEAMARK_PASSWORD, ...)
//  3. the settings file: --config, else IDEAMARK_CONFIG_FILE, else
//     settings.{yaml,yml,json,toml} in the working directory
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/ideamark/internal/config"
	"github.com/conneroisu/ideamark/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ideamark",
	Short: "A markdown concept and documentation store",
	Long: `ideamark serves a tree of markdown posts in several languages and keeps
the served content current while files change.

Quick Start:
  ideamark serve      Ingest the content directories and serve them
  ideamark publish    Push changed files to the remote server
  ideamark version    Show version information

Edit settings.yaml to change settings.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is ./settings.yaml, can also use IDEAMARK_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// normalizeFlagName accepts settings keys as flag names, so --live_reload
// and --live-reload are the same flag.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initConfig points viper at the settings file and the environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("IDEAMARK_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("settings")
	}

	viper.SetEnvPrefix("IDEAMARK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadSettings reads the settings file and decodes the settings. A missing
// default settings file is not an error; defaults and environment apply.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using settings file:", viper.ConfigFileUsed())
	}

	return config.Load(viper.GetViper())
}

// loggerConfig builds the logger configuration from the persistent flags.
func loggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(viper.GetString("log-level"))
	cfg.Format = viper.GetString("log-format")
	return cfg
}
