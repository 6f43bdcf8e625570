package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/DannyMichaels/code-dojo-app/pkg/config"
)

const version = "0.1.0"

var (
	configPath string
	// v holds DOJO_* environment bindings plus every bound command flag.
	v = config.NewViper()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dojo",
		Short: "Code Dojo - adaptive training-session engine",
		Long: `dojo runs the training-session engine: belt progression, spaced
repetition and coached turns streamed from a reasoning service.

Settings come from a YAML file (--config) and DOJO_* environment variables,
e.g. DOJO_SERVER_HTTP_PORT=9000. Flags win over both.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DOJO_CONFIG"), "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: json, console")
	bindFlag(rootCmd.PersistentFlags(), "log-level", "logging.level")
	bindFlag(rootCmd.PersistentFlags(), "log-format", "logging.format")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newBeltRequirementsCommand())
	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the file named by --config and applies overrides.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath, v)
}

// bindFlag routes a flag onto a config key. Only flags the user actually
// set override the file.
func bindFlag(flags *pflag.FlagSet, name, key string) {
	if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dojo v%s\n", version)
		},
	}
}
