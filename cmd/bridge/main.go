// cmd/bridge/main.go
package main

import (
	"context"
	goflag "flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/tamzrod/modbus-bridge/internal/breaker"
	"github.com/tamzrod/modbus-bridge/internal/config"
	"github.com/tamzrod/modbus-bridge/internal/metrics"
	"github.com/tamzrod/modbus-bridge/internal/poller"
	"github.com/tamzrod/modbus-bridge/internal/publish"
	"github.com/tamzrod/modbus-bridge/internal/schema"
	"github.com/tamzrod/modbus-bridge/internal/server"
	"github.com/tamzrod/modbus-bridge/internal/snapshot"
	tmodbus "github.com/tamzrod/modbus-bridge/internal/transport/modbus"
	"github.com/tamzrod/modbus-bridge/internal/transport/solarman"
)

// version is stamped by the build; dev builds report "dev".
var version = "dev"

func main() {
	cmd := newBridgeCommand()
	if err := cmd.Execute(); err != nil {
		klog.Errorf("bridge: %v", err)
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func newBridgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bridge",
		Short:         "Poll an inverter's Modbus registers and serve them over HTTP, websocket and MQTT",
		Long:          "bridge reads a register table, polls the configured transport on a fixed interval,\nand serves the latest decoded snapshot. All runtime settings come from the environment.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	// klog registers names like log_dir; accept the dashed spelling too.
	cmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(fs)
	cmd.PersistentFlags().AddGoFlagSet(fs)
	return cmd
}

func run(parent context.Context) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.FromEnv()
	if err != nil {
		return errors.Wrap(err, "config")
	}
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "config")
	}
	config.Normalize(cfg)

	table, err := schema.Load(cfg.Table.Path)
	if err != nil {
		return errors.Wrap(err, "register table")
	}
	for _, w := range table.Warnings {
		klog.Warningf("register table: %s", w)
	}
	klog.Infof("loaded %d register(s) from %s", len(table.Entries), cfg.Table.Path)

	// --------------------
	// Build the pipeline
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.RegistersLoaded.Set(float64(len(table.Entries)))

	reader, err := buildReader(cfg)
	if err != nil {
		return err
	}
	defer reader.Close()

	st := &snapshot.Store{}
	metrics.RegisterSnapshotAge(reg, func() (time.Duration, bool) {
		snap := st.Get()
		if snap == nil {
			return 0, false
		}
		return snap.Age(time.Now()), true
	})
	br := breaker.New(cfg.Breaker.FailLimit, cfg.Breaker.OpenFor)
	hub := server.NewHub(m)

	sinks := []poller.Sink{hub}
	if cfg.MQTT.Enabled() {
		mq, err := publish.NewMQTT(publish.MQTTConfig{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			TopicBase: cfg.MQTT.TopicBase,
			QOS:       cfg.MQTT.QOS,
			Retained:  cfg.MQTT.Retained,
		}, m)
		if err != nil {
			return err
		}
		defer mq.Close()
		sinks = append(sinks, mq)
	}

	p, err := poller.New(poller.Config{
		Reader:   reader,
		Table:    table,
		Breaker:  br,
		Store:    st,
		Metrics:  m,
		Sinks:    sinks,
		Decimals: cfg.Table.RoundDecimals,
		Timeout:  cfg.Poll.RequestTimeout,
		Interval: cfg.Poll.Interval,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:      cfg.HTTP.Addr(),
		Store:     st,
		Breaker:   br,
		Hub:       hub,
		Gatherer:  reg,
		Registers: len(table.Entries),
		Decimals:  cfg.Table.RoundDecimals,
	})

	// --------------------
	// Run until signalled
	// --------------------

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	klog.Infof("bridge %s: transport %s, polling every %s", version, cfg.Transport.Kind, cfg.Poll.Interval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	klog.Info("bridge: shut down cleanly")
	return nil
}

// buildReader picks the wire client for the configured transport.
func buildReader(cfg *config.Config) (poller.Reader, error) {
	t := cfg.Transport
	switch t.Kind {
	case config.TransportSolarman:
		return solarman.New(solarman.Config{
			Addr:         t.LoggerAddr(),
			LoggerSerial: t.LoggerSN,
			SlaveID:      t.SlaveID,
			Timeout:      t.SocketTimeout,
		}), nil

	case config.TransportTCP:
		return tmodbus.NewTCP(tmodbus.TCPConfig{
			Addr:        t.Endpoint,
			SlaveID:     t.SlaveID,
			Timeout:     t.SocketTimeout,
			IdleTimeout: 2 * cfg.Poll.Interval,
		}), nil

	case config.TransportRTU:
		return tmodbus.NewRTU(tmodbus.RTUConfig{
			Device:   t.RTU.Device,
			BaudRate: t.RTU.BaudRate,
			DataBits: t.RTU.DataBits,
			Parity:   t.RTU.Parity,
			StopBits: t.RTU.StopBits,
			SlaveID:  t.SlaveID,
			Timeout:  t.SocketTimeout,
		}), nil
	}
	return nil, errors.Errorf("unknown transport %q", t.Kind)
}
