package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenCHAMI/senselink/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		if rev, _ := cmd.Flags().GetBool("rev"); rev {
			fmt.Fprintln(cmd.OutOrStdout(), version.GitCommit)
			return
		}
		if all, _ := cmd.Flags().GetBool("all"); all {
			version.PrintVersionInfo(cmd.OutOrStdout())
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
	},
}

func init() {
	versionCmd.Flags().Bool("rev", false, "show the version commit")
	versionCmd.Flags().Bool("all", false, "show all build information")
	rootCmd.AddCommand(versionCmd)
}
