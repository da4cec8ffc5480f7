package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenCHAMI/senselink/internal/cache/sqlite"
	"github.com/OpenCHAMI/senselink/internal/format"
)

var listFormat = format.FORMAT_LIST

// The `list` command shows the hosts recorded in the requester cache by
// `serve`, i.e. who has been polling the emulated plugs.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List hosts that polled the emulator",
	Long: "Prints every host recorded in the requester cache while serving.\n\n" +
		"Examples:\n" +
		"  senselink list\n" +
		"  senselink list --cache ./requesters.db --format json",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := sqlite.OpenExisting(cachePath)
		if err != nil {
			return err
		}
		defer c.Close()

		requesters, err := c.Get()
		if err != nil {
			return err
		}
		if listFormat == format.FORMAT_LIST {
			for _, r := range requesters {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%d polls=%d dropped=%d last=%s\n",
					r.Host, r.Port, r.Polls, r.Dropped, r.LastSeen.Format(time.UnixDate))
			}
			return nil
		}
		b, err := format.Marshal(requesters, listFormat)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	listCmd.Flags().VarP(&listFormat, "format", "F", "Set the output format (list, json, yaml)")
	rootCmd.AddCommand(listCmd)
}
