package cmd

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/OpenCHAMI/senselink/internal/cache"
	"github.com/OpenCHAMI/senselink/internal/cache/sqlite"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the requester cache",
	Run: func(cmd *cobra.Command, args []string) {
		// show the help for cache and exit
		if len(args) <= 0 {
			cmd.Help()
			os.Exit(0)
		}
	},
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <host[:port]>...",
	Short: "Remove hosts from the requester cache",
	Long: "Removes one port of a host, or every port when no port is given.\n\n" +
		"Examples:\n" +
		"  senselink cache remove 192.168.1.20\n" +
		"  senselink cache remove 192.168.1.20:9999 192.168.1.21",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		requesters := make([]cache.Requester, 0, len(args))
		for _, arg := range args {
			r, err := parseRequester(arg)
			if err != nil {
				return err
			}
			requesters = append(requesters, r)
		}

		c, err := sqlite.OpenExisting(cachePath)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Delete(requesters...); err != nil {
			return err
		}
		for _, r := range requesters {
			log.Debug().Str("host", r.Host).Int("port", r.Port).Msg("removed from cache")
		}
		return nil
	},
}

func parseRequester(arg string) (cache.Requester, error) {
	host, portStr, err := net.SplitHostPort(arg)
	if err != nil {
		// no port
		if arg == "" {
			return cache.Requester{}, fmt.Errorf("empty host")
		}
		return cache.Requester{Host: arg}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return cache.Requester{}, fmt.Errorf("invalid port in %q", arg)
	}
	return cache.Requester{Host: host, Port: port}, nil
}

func init() {
	cacheCmd.AddCommand(cacheRemoveCmd)
	rootCmd.AddCommand(cacheCmd)
}
