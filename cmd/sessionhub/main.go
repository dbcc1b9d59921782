package main

import (
	"os"

	"github.com/spf13/cobra"

	"sessionhub/internal/commands"
	"sessionhub/internal/output"
)

var jsonFlag bool

var rootCmd = &cobra.Command{
	Use:          "sessionhub",
	Short:        "Remote access hub for AI coding sessions",
	Long:         "Multiplex chat sessions, interactive shells and transcript updates over websockets",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "Config file (default ~/.sessionhub/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&commands.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.UsageCmd)
	rootCmd.AddCommand(commands.CurrentCmd)
	rootCmd.AddCommand(commands.ProjectsCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.MCPCmd)
	rootCmd.AddCommand(commands.TokenCmd)
	rootCmd.AddCommand(commands.VersionCmd)
	rootCmd.AddCommand(commands.CompletionCmd)
}

func main() {
	// Propagate --json flag before execution
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		output.JSONMode = jsonFlag
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
