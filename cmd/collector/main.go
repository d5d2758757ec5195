package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ServerMonitorAPI/internal/collector"
	"ServerMonitorAPI/internal/config"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/mqtt"

	"github.com/spf13/cobra"
)

type options struct {
	serverID string
	interval time.Duration
	broker   string
	port     int
	topic    string
	username string
	password string
	diskPath string
	once     bool
	debug    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Publish host metrics to the server monitor",
		Long: `collector samples CPU, memory, disk, load, network throughput and uptime
on this host and publishes them to the telemetry MQTT topic.

Example:
  collector --server-id web-01 --broker mqtt.internal --interval 30s`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	hostname, _ := os.Hostname()

	flags := cmd.Flags()
	flags.StringVar(&opts.serverID, "server-id", hostname, "server ID reported with every metric")
	flags.DurationVar(&opts.interval, "interval", collector.DefaultInterval, "sampling interval")
	flags.StringVar(&opts.broker, "broker", "localhost", "MQTT broker host")
	flags.IntVar(&opts.port, "port", 1883, "MQTT broker port")
	flags.StringVar(&opts.topic, "topic", collector.DefaultTopic, "telemetry topic")
	flags.StringVar(&opts.username, "username", "", "MQTT username")
	flags.StringVar(&opts.password, "password", "", "MQTT password")
	flags.StringVar(&opts.diskPath, "disk-path", collector.DefaultDiskPath, "filesystem whose usage is reported")
	flags.BoolVar(&opts.once, "once", false, "publish a single sample and exit")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	level := logger.INFO
	if opts.debug {
		level = logger.DEBUG
	}
	log, err := logger.New(logger.Config{Level: level, Mode: logger.NORMAL, UseColors: true})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	client, err := mqtt.NewClient(mqtt.ClientConfig{
		MQTT: config.MQTTConfig{
			Broker:         opts.broker,
			Port:           opts.port,
			ClientID:       fmt.Sprintf("collector-%s-%d", opts.serverID, os.Getpid()),
			Username:       opts.username,
			Password:       opts.password,
			QoS:            1,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			AutoReconnect:  true,
		},
		Logger: log,
	})
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	defer client.Disconnect()

	c, err := collector.New(collector.Config{
		ServerID: opts.serverID,
		Topic:    opts.topic,
		Interval: opts.interval,
		DiskPath: opts.diskPath,
	}, collector.HostSource{}, client, nil, log)
	if err != nil {
		return err
	}

	if opts.once {
		return c.Publish(ctx)
	}
	return c.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
