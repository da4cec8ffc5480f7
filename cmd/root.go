// The cmd package implements the interface for the senselink CLI. The files
// contained in this package only handle CLI arguments and pass them to the
// packages that do the work.
//
// For example:
//
//	cmd/serve.go    --> pkg/server ( server.New(), Start() )
//	cmd/probe.go    --> internal/probe.go ( senselink.ProbeForOutlets() )
//	cmd/identity.go --> pkg/outlet ( outlet.DeriveDeviceID() )
//	cmd/list.go     --> internal/cache/sqlite
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	senselink "github.com/OpenCHAMI/senselink/internal"
	logger "github.com/OpenCHAMI/senselink/internal/log"
	"github.com/OpenCHAMI/senselink/internal/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cachePath string
	logLevel  = logger.INFO
	logFile   string

	envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")
)

// The `root` command doesn't do anything on it's own except display
// a help message and then exits.
var rootCmd = &cobra.Command{
	Use:   "senselink",
	Short: "Smart plug emulator for home energy monitors",
	Long: "Emulates HS110-style energy metering smart plugs on the local network so a\n" +
		"home energy monitor discovers them and records their power as if they were real.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logLevel.Set(viper.GetString("log-level")); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		return logger.InitWithLogLevel(logLevel, viper.GetString("log-file"))
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			err := cmd.Help()
			if err != nil {
				log.Error().Err(err).Msg("failed to print help")
			}
			os.Exit(0)
		}
	},
}

// This Execute() function is called from main to run the CLI.
func Execute() {
	defer func() {
		if logger.LogFile != nil {
			logger.LogFile.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitializeConfig)
	SetDefaults()
	rootCmd.PersistentFlags().StringP("config", "c", "", "Set the config file path")
	rootCmd.PersistentFlags().Var(&logLevel, "log-level", fmt.Sprintf("Set the log level (%s)", logger.Levels.Strings()))
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also append logs to this file")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", util.DefaultCachePath(), "Set the requester cache path")

	// bind viper config flags with cobra
	checkBindFlagError(viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")))
	checkBindFlagError(viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")))
	checkBindFlagError(viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")))
	checkBindFlagError(viper.BindPFlag("cache", rootCmd.PersistentFlags().Lookup("cache")))
}

func checkBindFlagError(err error) {
	if err != nil {
		log.Error().Err(err).Msg("failed to bind cobra/viper flag")
	}
}

// InitializeConfig() loads the config file named by --config, or
// config.{yaml,json} from the senselink config directory when present.
// Environment variables prefixed with SENSELINK_ override both.
func InitializeConfig() {
	viper.SetEnvPrefix("senselink")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	if path := viper.GetString("config"); path != "" {
		if err := senselink.LoadConfig(path); err != nil {
			log.Error().Err(err).Msg("failed to load config")
			return
		}
		log.Debug().Str("path", filepath.Clean(path)).Msg("loaded config")
		return
	}
	viper.AddConfigPath(util.ConfigDir())
	viper.SetConfigName("config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// the default config file is optional
			return
		}
		log.Error().Err(err).Msg("failed to load config")
		return
	}
	log.Debug().Str("path", filepath.Clean(viper.ConfigFileUsed())).Msg("loaded config")
}

// SetDefaults() resets all of the viper properties back to their
// default values.
func SetDefaults() {
	viper.SetDefault("config", "")
	viper.SetDefault("log-level", string(logger.INFO))
	viper.SetDefault("log-file", "")
	viper.SetDefault("cache", util.DefaultCachePath())
	viper.SetDefault("serve.bind", "0.0.0.0")
	viper.SetDefault("serve.port", 9999)
	viper.SetDefault("serve.workers", 4)
	viper.SetDefault("serve.queue-size", 256)
	viper.SetDefault("serve.no-respond", false)
	viper.SetDefault("serve.outlets", "")
	viper.SetDefault("serve.report-interval", "0s")
	viper.SetDefault("serve.disable-cache", false)
	viper.SetDefault("http.endpoint", "")
	viper.SetDefault("mqtt.broker", "")
	viper.SetDefault("mqtt.topic", "senselink/+/power")
	viper.SetDefault("mqtt.client-id", "senselink")
	viper.SetDefault("mqtt.qos", 0)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("probe.port", 9999)
	viper.SetDefault("probe.timeout", "2s")
}
