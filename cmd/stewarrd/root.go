package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stewarrd",
	Short: "Media request tracking and server power automation daemon",
	Long: `stewarrd - media request tracking and server power automation

Tracks movie and series requests through Radarr and Sonarr until they
become available, announces newly added library content, and manages
the media server's daily wake and shutdown schedule.

Run 'stewarrd serve' to start the daemon.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to config file")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("stewarrd {{.Version}}\n")
}
