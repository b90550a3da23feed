// Package cmd wires the parallelcache CLI, adapted from
// internal/cmd/root.go's cobra/viper/slog scaffolding: a persistent
// --config flag, a --verbose flag gating log level, and subcommands
// attached via each file's init().
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpequegn/parallelcache/internal/telemetry"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "parallelcache",
	Short: "Capture/replay driver for batching and parallelizing cacheable analysis calls",
	Long: `parallelcache observes a first execution of your serial analysis code,
collects calls to functions marked parallelizable, groups them into
batches, dispatches each batch to a pluggable backend, then re-executes
your code a second time so every marked call is satisfied from a
persistent cache populated during the parallel phase.`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./parallelcache.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initViper mirrors root.go's initConfig: search path and env prefix,
// best-effort read (a missing config file is not an error).
func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("parallelcache")
	}

	viper.SetEnvPrefix("PARALLELCACHE")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func initLogger() {
	logger := telemetry.NewLogger(verbose || viper.GetBool("verbose"))
	slog.SetDefault(logger)
}
