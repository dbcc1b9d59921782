package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ConfigFile is the config path selected by the root --config flag. Empty
// means config.ConfigPath.
var ConfigFile string

// ServeCmd starts the hub.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session hub server",
	Long:  "Serve the chat, shell and session-sync websockets plus the REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		advertise, _ := cmd.Flags().GetBool("advertise")
		return RunServe(addr, advertise)
	},
}

func init() {
	ServeCmd.Flags().String("addr", "", "Listen address (overrides config)")
	ServeCmd.Flags().Bool("advertise", false, "Advertise the hub on the local network")
}

// UsageCmd prints the context usage of a session.
var UsageCmd = &cobra.Command{
	Use:   "usage <project> <session-id>",
	Short: "Show token usage of a session",
	Long:  "Report context-window usage from a session transcript. <project> is a project path or its encoded directory name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunUsage(args[0], args[1])
	},
}

// CurrentCmd prints the latest session of a project.
var CurrentCmd = &cobra.Command{
	Use:   "current [path]",
	Short: "Show the latest session of a project",
	Long:  "Show the most recently modified transcript for a project (default: the working directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd := ""
		if len(args) > 0 {
			cwd = args[0]
		}
		return RunCurrent(cwd)
	},
}

// ProjectsCmd lists project directories under the transcript root.
var ProjectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"ls"},
	Short:   "List projects with transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunProjects()
	},
}

// StatsCmd prints token and cost totals.
var StatsCmd = &cobra.Command{
	Use:   "stats [project]",
	Short: "Show token usage and estimated cost",
	Long:  "Summarize token usage and estimated cost from transcripts, for one project or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		project := ""
		if len(args) > 0 {
			project = args[0]
		}
		return RunStats(period, project)
	},
}

func init() {
	StatsCmd.Flags().StringP("period", "p", "week", "Period: today, week, month or all")
	_ = StatsCmd.RegisterFlagCompletionFunc("period", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"today", "week", "month", "all"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// MCPCmd serves the MCP tools over stdio.
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve transcript tools over MCP stdio",
	Long:  "Run an MCP server on stdin/stdout exposing project, session, token-usage and stats tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunMCP()
	},
}

// TokenCmd manages API tokens.
var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

// TokenAddCmd generates and stores a new token.
var TokenAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Generate a new API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunTokenAdd()
	},
}

// TokenListCmd lists configured tokens.
var TokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured API tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunTokenList()
	},
}

// TokenRemoveCmd removes a token.
var TokenRemoveCmd = &cobra.Command{
	Use:   "remove <token>",
	Short: "Remove an API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunTokenRemove(args[0])
	},
}

func init() {
	TokenCmd.AddCommand(TokenAddCmd)
	TokenCmd.AddCommand(TokenListCmd)
	TokenCmd.AddCommand(TokenRemoveCmd)
}

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		RunVersion()
	},
}

// CompletionCmd generates shell completion scripts.
var CompletionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for sessionhub.

  bash:       source <(sessionhub completion bash)
  zsh:        sessionhub completion zsh > "${fpath[1]}/_sessionhub"
  fish:       sessionhub completion fish | source
  powershell: sessionhub completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			return root.GenZshCompletion(os.Stdout)
		case "fish":
			return root.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return fmt.Errorf("unsupported shell %q", args[0])
	},
}
