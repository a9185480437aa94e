package main

import (
	"fmt"

	"github.com/fentz26/taskgrid/internal/controlplane"
	"github.com/fentz26/taskgrid/internal/mcpserver"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("taskgrid", version)
	},
}

func init() {
	controlplane.Version = version
	mcpserver.Version = version
	rootCmd.AddCommand(versionCmd)
}
