package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cica",
	Short: "Cica - A personal AI assistant that lives in your chat",
	Long: `Cica bridges chat platforms to an AI backend: it receives your
messages, forwards them to the backend, and schedules recurring prompts
with its built-in cron system.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pathsCmd)
}
