package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/ecowatt/shelly-onboard/internal/global"

	"github.com/spf13/cobra"
)

var Version string
var Commit string

func init() {
	Cmd.AddCommand(versionCmd)
}

// getVersion returns the version string, using git describe if build-time version is not set
func getVersion() string {
	if Version != "" {
		return Version
	}

	cmd := exec.Command("git", "describe", "--always", "--tags", "--dirty")
	output, err := cmd.Output()
	if err == nil {
		return strings.TrimSpace(string(output))
	}

	if Commit != "" {
		return Commit
	}
	return "dev"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(global.Version(cmd.Context()))
	},
}
