package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergent-company/ageload/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display the version, commit hash, and build date of ageload",
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	info := version.Info()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ageload\n")
	fmt.Fprintf(out, "  Version:    %s\n", info.Version)
	fmt.Fprintf(out, "  Commit:     %s\n", info.GitCommit)
	fmt.Fprintf(out, "  Built:      %s\n", info.BuildTime)
	fmt.Fprintf(out, "  Go version: %s\n", info.GoVersion)
	fmt.Fprintf(out, "  OS/Arch:    %s\n", info.Platform)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
