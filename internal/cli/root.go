// Package cli wires the command-line interface for the training harness.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cameratraps",
	Short: "Camera-trap species classifier tools",
	Long: `Training and evaluation tools for camera-trap species classifiers.
Runs write their artifacts (params, label index, metrics stream, best
checkpoint, summary) into a timestamped run directory.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	viper.SetEnvPrefix("CAMERATRAPS")
	viper.AutomaticEnv()
}
