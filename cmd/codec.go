package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OpenCHAMI/senselink/pkg/codec"
)

var (
	codecRaw    bool
	codecPrefix bool
)

// The `codec` commands run the plug cipher over stdin, handy for looking
// at captured traffic.
var codecCmd = &cobra.Command{
	Use:   "codec",
	Short: "Encrypt or decrypt plug protocol payloads",
	Example: `  echo -n '{"system":{"get_sysinfo":{}}}' | senselink codec encode
  senselink codec decode < capture.hex`,
}

var codecEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encrypt stdin and print it as hex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		var out []byte
		if codecPrefix {
			out = codec.Encode(plain)
		} else {
			out = codec.EncodeDatagram(plain)
		}
		if codecRaw {
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(out))
		return nil
	},
}

var codecDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decrypt hex from stdin and print the plaintext",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		cipher := in
		if !codecRaw {
			cipher, err = hex.DecodeString(string(bytes.Join(bytes.Fields(in), nil)))
			if err != nil {
				return fmt.Errorf("input is not hex: %w", err)
			}
		}
		var plain []byte
		if codecPrefix {
			plain, err = codec.DecodeFrame(cipher)
			if err != nil {
				return err
			}
		} else {
			plain = codec.Decode(cipher)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(plain))
		return nil
	},
}

func init() {
	codecCmd.PersistentFlags().BoolVar(&codecRaw, "raw", false, "Read or write raw bytes instead of hex")
	codecCmd.PersistentFlags().BoolVar(&codecPrefix, "prefix", false, "Use the 4-byte length prefix of the TCP framing")
	codecCmd.AddCommand(codecEncodeCmd, codecDecodeCmd)
	rootCmd.AddCommand(codecCmd)
}
