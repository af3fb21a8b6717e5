package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oxiglade/cica/internal/config"
	"github.com/oxiglade/cica/internal/workspace"
)

var pathsConfigPath string

// pathsCmd prints where Cica stores its data.
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show where Cica stores its data",
	Run: func(cmd *cobra.Command, args []string) {
		cfgPath := pathsConfigPath
		if cfgPath == "" {
			cfgPath = "./config.toml"
		}

		wsCfg := config.WorkspaceConfig{Path: "~/.cica"}
		if cfg, err := config.Load(cfgPath); err == nil {
			wsCfg = cfg.Workspace
		}

		ws := workspace.New(wsCfg)
		fmt.Printf("Workspace: %s\n", ws.Path())
		fmt.Printf("Jobs:      %s\n", ws.JobsFile())
		fmt.Printf("Sessions:  %s\n", ws.SessionsFile())
		fmt.Printf("Logs:      %s\n", ws.Subpath(workspace.SubdirLogs))

		if _, err := os.Stat(ws.Path()); os.IsNotExist(err) {
			fmt.Println("\nWorkspace does not exist yet; it is created on first serve.")
		}
	},
}

func init() {
	pathsCmd.Flags().StringVarP(&pathsConfigPath, "config", "c", "", "Path to config file (default ./config.toml)")
}
