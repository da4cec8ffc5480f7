package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenCHAMI/senselink/internal/format"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
)

var identityFormat = format.FORMAT_LIST

type identity struct {
	ID       string `json:"id" yaml:"id"`
	DeviceID string `json:"device_id" yaml:"device_id"`
	MAC      string `json:"mac" yaml:"mac"`
}

// The `identity` command prints the device ID and MAC an outlet ID maps
// to, which is how the energy monitor will know it.
var identityCmd = &cobra.Command{
	Use:   "identity <id>...",
	Short: "Print the device ID and MAC derived from outlet IDs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]identity, 0, len(args))
		for _, id := range args {
			deviceID := outlet.DeriveDeviceID(id)
			mac, err := outlet.DeriveMAC(deviceID)
			if err != nil {
				return fmt.Errorf("failed to derive MAC for %s: %w", id, err)
			}
			ids = append(ids, identity{ID: id, DeviceID: deviceID, MAC: mac})
		}
		if identityFormat == format.FORMAT_LIST {
			for _, i := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", i.ID, i.DeviceID, i.MAC)
			}
			return nil
		}
		b, err := format.Marshal(ids, identityFormat)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	identityCmd.Flags().VarP(&identityFormat, "format", "F", "Set the output format (list, json, yaml)")
	rootCmd.AddCommand(identityCmd)
}
