package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	senselink "github.com/OpenCHAMI/senselink/internal"
	"github.com/OpenCHAMI/senselink/internal/format"
	"github.com/OpenCHAMI/senselink/pkg/server"
)

var probeFormat = format.FORMAT_LIST

// The `probe` command does what the energy monitor does: it sends one
// discovery poll and prints every plug that answers.
var probeCmd = &cobra.Command{
	Use:   "probe [host[:port]]...",
	Short: "Send a discovery poll and print the plugs that answer",
	Long: "Sends the energy monitor's discovery poll to each host (the broadcast address\n" +
		"by default) and prints the decoded replies received before the timeout.\n\n" +
		"Examples:\n" +
		"  senselink probe\n" +
		"  senselink probe 192.168.1.50 --format json\n" +
		"  senselink probe 127.0.0.1:19999 --timeout 500ms",
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := senselink.ProbeForOutlets(cmd.Context(), senselink.ProbeParams{
			Targets: args,
			Port:    viper.GetInt("probe.port"),
			Timeout: viper.GetDuration("probe.timeout"),
		})
		if err != nil {
			return err
		}
		if probeFormat == format.FORMAT_LIST {
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q (%s, %s) %.2f W %.3f A %.1f V\n",
					r.From, r.Alias, r.DeviceID, r.MAC, r.Power, r.Current, r.Voltage)
			}
			return nil
		}
		b, err := format.Marshal(results, probeFormat)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	probeCmd.Flags().Int("port", server.DefaultPort, "Set the port for hosts given without one")
	probeCmd.Flags().Duration("timeout", 0, "Set how long to wait for replies (default 2s)")
	probeCmd.Flags().VarP(&probeFormat, "format", "F", "Set the output format (list, json, yaml)")

	checkBindFlagError(viper.BindPFlag("probe.port", probeCmd.Flags().Lookup("port")))
	checkBindFlagError(viper.BindPFlag("probe.timeout", probeCmd.Flags().Lookup("timeout")))

	rootCmd.AddCommand(probeCmd)
}
