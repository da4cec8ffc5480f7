package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	senselink "github.com/OpenCHAMI/senselink/internal"
	"github.com/OpenCHAMI/senselink/internal/cache"
	"github.com/OpenCHAMI/senselink/internal/cache/sqlite"
	"github.com/OpenCHAMI/senselink/internal/metrics"
	"github.com/OpenCHAMI/senselink/internal/version"
	"github.com/OpenCHAMI/senselink/pkg/daemon"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
	"github.com/OpenCHAMI/senselink/pkg/server"
	"github.com/OpenCHAMI/senselink/pkg/source/mqtt"
)

const cacheFlushInterval = 10 * time.Second

// The `serve` command runs the emulator until interrupted. Outlets come
// from the `outlets` list in the config file and/or an --outlets file.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer energy monitor discovery polls for the configured outlets",
	Example: `  // serve the outlets listed in the config file
  senselink serve -c config.yaml
  // serve outlets from a separate file with the HTTP API enabled
  senselink serve --outlets outlets.yaml --http 127.0.0.1:9998
  // follow live power readings from MQTT (topic senselink/<outlet>/power)
  senselink serve --outlets outlets.yaml --mqtt-broker tcp://localhost:1883`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.NewMetrics(promRegistry)
		for _, o := range registry.Snapshot() {
			m.SetOutletPower(o.ID, o.Power)
		}

		opts := []server.Option{server.WithMetrics(m)}
		var requesters *sqlite.RequesterCache
		if !viper.GetBool("serve.disable-cache") {
			requesters, err = sqlite.Open(viper.GetString("cache"))
			if err != nil {
				return fmt.Errorf("failed to open requester cache: %w", err)
			}
			defer requesters.Close()

			recorder := cache.NewRecorder(requesters, uuid.New())
			opts = append(opts, server.WithOnRequest(recorder.Observe))
			recorder.Start(cacheFlushInterval)
			// deferred before srv.Stop, so it runs after the last Observe
			defer recorder.Stop()
			log.Debug().Str("session", recorder.Session().String()).Str("path", viper.GetString("cache")).Msg("recording requesters")
		}

		srv := server.New(server.Config{
			BindAddress: viper.GetString("serve.bind"),
			Port:        viper.GetInt("serve.port"),
			Workers:     viper.GetInt("serve.workers"),
			QueueSize:   viper.GetInt("serve.queue-size"),
			DryRun:      viper.GetBool("serve.no-respond"),
		}, registry.Snapshot, opts...)
		if err := srv.Start(); err != nil {
			stop()
			return fmt.Errorf("failed to start server: %w", err)
		}
		defer srv.Stop()

		if broker := viper.GetString("mqtt.broker"); broker != "" {
			source := mqtt.New(mqtt.Config{
				Broker:   broker,
				ClientID: viper.GetString("mqtt.client-id"),
				Topic:    viper.GetString("mqtt.topic"),
				QoS:      byte(viper.GetUint("mqtt.qos")),
				Username: viper.GetString("mqtt.username"),
				Password: viper.GetString("mqtt.password"),
			}, registry,
				mqtt.WithLogger(log.Logger.With().Str("component", "mqtt").Logger()),
				mqtt.WithMetrics(m),
			)
			if err := source.Start(); err != nil {
				stop()
				return fmt.Errorf("failed to start MQTT source: %w", err)
			}
			defer source.Stop()
		}

		if endpoint := viper.GetString("http.endpoint"); endpoint != "" {
			daemonOpts := []daemon.Option{
				daemon.WithLogger(log.Logger.With().Str("component", "http").Logger()),
				daemon.WithMetrics(promRegistry, m),
			}
			if requesters != nil {
				daemonOpts = append(daemonOpts, daemon.WithRequesters(requesters))
			}
			api := daemon.New(registry, srv, daemonOpts...)
			go func() {
				if err := api.Run(ctx, endpoint); err != nil {
					log.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP API stopped")
					stop()
				}
			}()
		}

		log.Info().Str("build", version.VersionInfo()).Int("outlets", registry.Len()).Msg("senselink started")
		server.LogWattages(log.Logger, registry.Snapshot)
		if interval := viper.GetDuration("serve.report-interval"); interval > 0 {
			go server.ReportWattages(ctx, log.Logger, interval, registry.Snapshot)
		}

		<-ctx.Done()
		log.Info().Msg("shutting down")
		return srv.Stop()
	},
}

// loadRegistry merges the config file outlets with the --outlets file.
func loadRegistry() (*outlet.Registry, error) {
	cfgs, err := senselink.OutletsFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if path := viper.GetString("serve.outlets"); path != "" {
		more, err := senselink.LoadOutletsFile(path)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, more...)
	}
	if len(cfgs) == 0 {
		return nil, errors.New("no outlets configured (set 'outlets' in the config file or use --outlets)")
	}
	return senselink.BuildRegistry(cfgs)
}

func init() {
	serveCmd.Flags().String("bind", server.DefaultBindAddress, "Set the address to listen on")
	serveCmd.Flags().IntP("port", "p", server.DefaultPort, "Set the UDP port to listen on")
	serveCmd.Flags().Int("workers", server.DefaultWorkers, "Set the number of reply workers")
	serveCmd.Flags().Int("queue-size", server.DefaultQueueSize, "Set the number of datagrams buffered before dropping")
	serveCmd.Flags().Bool("no-respond", false, "Build and log replies without sending them")
	serveCmd.Flags().String("outlets", "", "Load outlets from a JSON or YAML file")
	serveCmd.Flags().Duration("report-interval", 0, "Log outlet wattages at this interval (0 disables)")
	serveCmd.Flags().Bool("disable-cache", false, "Do not record requesters in the cache")
	serveCmd.Flags().String("http", "", "Serve the HTTP API on this endpoint, e.g. "+daemon.DefaultEndpoint+" (empty disables)")
	serveCmd.Flags().String("mqtt-broker", "", "Read live power from this MQTT broker (empty disables)")
	serveCmd.Flags().String("mqtt-topic", mqtt.DefaultTopic, "Set the MQTT topic filter; '+' matches the outlet ID")
	serveCmd.Flags().String("mqtt-client-id", mqtt.DefaultClientID, "Set the MQTT client ID")
	serveCmd.Flags().Uint("mqtt-qos", 0, "Set the MQTT subscription QoS")
	serveCmd.Flags().String("mqtt-username", "", "Set the MQTT username")
	serveCmd.Flags().String("mqtt-password", "", "Set the MQTT password")

	checkBindFlagError(viper.BindPFlag("serve.bind", serveCmd.Flags().Lookup("bind")))
	checkBindFlagError(viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port")))
	checkBindFlagError(viper.BindPFlag("serve.workers", serveCmd.Flags().Lookup("workers")))
	checkBindFlagError(viper.BindPFlag("serve.queue-size", serveCmd.Flags().Lookup("queue-size")))
	checkBindFlagError(viper.BindPFlag("serve.no-respond", serveCmd.Flags().Lookup("no-respond")))
	checkBindFlagError(viper.BindPFlag("serve.outlets", serveCmd.Flags().Lookup("outlets")))
	checkBindFlagError(viper.BindPFlag("serve.report-interval", serveCmd.Flags().Lookup("report-interval")))
	checkBindFlagError(viper.BindPFlag("serve.disable-cache", serveCmd.Flags().Lookup("disable-cache")))
	checkBindFlagError(viper.BindPFlag("http.endpoint", serveCmd.Flags().Lookup("http")))
	checkBindFlagError(viper.BindPFlag("mqtt.broker", serveCmd.Flags().Lookup("mqtt-broker")))
	checkBindFlagError(viper.BindPFlag("mqtt.topic", serveCmd.Flags().Lookup("mqtt-topic")))
	checkBindFlagError(viper.BindPFlag("mqtt.client-id", serveCmd.Flags().Lookup("mqtt-client-id")))
	checkBindFlagError(viper.BindPFlag("mqtt.qos", serveCmd.Flags().Lookup("mqtt-qos")))
	checkBindFlagError(viper.BindPFlag("mqtt.username", serveCmd.Flags().Lookup("mqtt-username")))
	checkBindFlagError(viper.BindPFlag("mqtt.password", serveCmd.Flags().Lookup("mqtt-password")))

	rootCmd.AddCommand(serveCmd)
}
