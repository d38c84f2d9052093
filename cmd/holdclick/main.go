// Command holdclick attaches right-button emulation to single-button touch
// devices and publishes the resulting button events to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/holdclick/internal/config"
	"github.com/sweeney/holdclick/internal/device"
	"github.com/sweeney/holdclick/internal/emulate"
	"github.com/sweeney/holdclick/internal/gpio"
	"github.com/sweeney/holdclick/internal/mqtt"
	"github.com/sweeney/holdclick/internal/status"
	"github.com/sweeney/holdclick/internal/web"
)

const (
	queueSize       = 256
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags holds command-line overrides. Only flags given on the command line
// replace the file and environment settings.
type flags struct {
	configPath string
	broker     string
	httpAddr   string
	heartbeat  time.Duration
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:          "holdclick",
		Short:        "Hold-to-right-click emulation for single-button touch devices",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", config.Path(), "Config file path")
	pf.StringVar(&f.broker, "broker", "", "MQTT broker address (overrides config)")
	pf.StringVar(&f.httpAddr, "http", "", `HTTP status address (overrides config, "off" disables)`)
	pf.DurationVar(&f.heartbeat, "heartbeat", 0, "Heartbeat interval (overrides config, 0 disables)")

	root.AddCommand(newConfigCmd(&f), newStateCmd(&f))
	return root
}

func newConfigCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newStateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the current state of each GPIO button and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), cfg, newRealButton)
		},
	}
}

// loadConfig reads the config file and applies flag overrides on top.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	fl := cmd.Flags()
	if fl.Changed("broker") {
		cfg.MQTT.Broker = f.broker
	}
	if fl.Changed("http") {
		cfg.HTTP.Addr = f.httpAddr
		if f.httpAddr == "off" {
			cfg.HTTP.Addr = ""
		}
	}
	if fl.Changed("heartbeat") {
		cfg.Heartbeat = f.heartbeat
	}
	return cfg, nil
}

// buttonFactory opens a GPIO button. Replaced by fakes in tests.
type buttonFactory func(l gpio.Line, debounce time.Duration, fn gpio.Handler) (gpio.Button, error)

func newRealButton(l gpio.Line, debounce time.Duration, fn gpio.Handler) (gpio.Button, error) {
	b, err := gpio.NewRealButton(l, debounce, fn)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func gpioLine(c *config.GPIOConfig) gpio.Line {
	return gpio.Line{Chip: c.Chip, Offset: c.Line, ActiveLow: c.ActiveLow}
}

func printState(w io.Writer, cfg *config.Config, open buttonFactory) error {
	n := 0
	for _, dc := range cfg.Devices {
		if dc.Source != config.SourceGPIO {
			continue
		}
		n++
		b, err := open(gpioLine(dc.GPIO), 0, nil)
		if err != nil {
			return fmt.Errorf("device %s: open gpio: %w", dc.Name, err)
		}
		pressed, err := b.Pressed()
		b.Close()
		if err != nil {
			return fmt.Errorf("device %s: read gpio: %w", dc.Name, err)
		}
		state := "RELEASED"
		if pressed {
			state = "PRESSED"
		}
		fmt.Fprintf(w, "%s (%s line %d): %s\n", dc.Name, dc.GPIO.Chip, dc.GPIO.Line, state)
	}
	if n == 0 {
		fmt.Fprintln(w, "no gpio devices configured")
	}
	return nil
}

// attached is the set of devices built from the config, with the GPIO
// buttons feeding them.
type attached struct {
	devices []*device.Device
	buttons []gpio.Button
}

func (a *attached) close() {
	for _, b := range a.buttons {
		if err := b.Close(); err != nil {
			log.Printf("gpio: close: %v", err)
		}
	}
	for _, d := range a.devices {
		d.Close()
	}
}

// attachDevices creates one device per configured input. GPIO buttons
// drive the primary button directly; websocket devices are registered
// with srv for remote input. srv may be nil.
func attachDevices(cfg *config.Config, queue chan<- device.Event, tracker *status.Tracker, srv *web.Server, open buttonFactory) (*attached, error) {
	a := &attached{}
	for _, dc := range cfg.Devices {
		emu, err := dc.Emulation()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}
		d, err := device.Attach(dc.Name, emu, device.Options{Queue: queue})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}
		a.devices = append(a.devices, d)
		tracker.AddSource(d)

		remote := dc.Source == config.SourceWebsocket
		switch dc.Source {
		case config.SourceGPIO:
			b, err := open(gpioLine(dc.GPIO), dc.GPIO.Debounce, func(pressed bool) {
				d.Button(emulate.PrimaryButton, pressed)
			})
			if err != nil {
				a.close()
				return nil, fmt.Errorf("device %s: open gpio: %w", dc.Name, err)
			}
			a.buttons = append(a.buttons, b)
		case config.SourceWebsocket:
			if srv == nil {
				log.Printf("device %s: websocket source with http disabled, no input possible", dc.Name)
			}
		}
		if srv != nil {
			srv.AddDevice(d, remote)
		}
		log.Printf("device %s: attached (source=%s emulation=%v timeout=%v button=%d threshold=%d)",
			dc.Name, dc.Source, emu.Enabled, emu.Timeout, emu.Button, emu.Threshold)
	}
	return a, nil
}

func run(cfg *config.Config) error {
	publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	defer publisher.Close()

	// Tracker before STARTUP so the snapshot is available
	tracker := status.NewTracker(time.Now(), status.Config{
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		HTTPAddr:    cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, tracker)
		srv.AllowOrigins(cfg.HTTP.AllowedOrigins...)
	}

	queue := make(chan device.Event, queueSize)
	devs, err := attachDevices(cfg, queue, tracker, srv, newRealButton)
	if err != nil {
		return err
	}

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if srv != nil {
		g.Go(func() error {
			log.Printf("http status server listening on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	log.Printf("started: devices=%d broker=%s heartbeat=%v http=%q",
		len(devs.devices), cfg.MQTT.Broker, cfg.Heartbeat, cfg.HTTP.Addr)

	l := &loop{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		detach:     devs.close,
		now:        time.Now,
	}
	g.Go(func() error {
		defer cancel()
		return l.run(ctx, queue, heartbeat, sigCh)
	})
	return g.Wait()
}

// loop moves events from the device queue to MQTT and keeps the status
// tracker current.
type loop struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	// detach closes every input. Devices release held buttons into the
	// queue, so it runs before the final drain.
	detach func()
	now    func() time.Time
}

func (l *loop) run(ctx context.Context, queue <-chan device.Event, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			l.shutdown(queue, signalName(s))
			return nil

		case <-ctx.Done():
			log.Printf("shutting down: %v", context.Cause(ctx))
			l.shutdown(queue, "ERROR")
			return nil

		case ev := <-queue:
			l.deliver(ev)

		case <-heartbeat:
			l.refresh()
			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			snap := l.tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v presses=%d releases=%d synthetic=%d",
				snap.Uptime().Truncate(time.Second), snap.Counts.Presses, snap.Counts.Releases, snap.Counts.Synthetic)
			hb := mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := l.publisher.PublishSystem(hb); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func (l *loop) deliver(ev device.Event) {
	kind := "raw"
	if ev.Synthetic {
		kind = "synthetic"
	}
	log.Printf("event: %s button %d %s (%s)", ev.Device, ev.Button, mqtt.Action(ev.Pressed), kind)
	if err := l.publisher.Publish(ev); err != nil {
		// Don't crash on publish failure
		log.Printf("publish error: %v", err)
	}
	l.tracker.Record(ev)
	l.refresh()
}

func (l *loop) refresh() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// shutdown detaches the inputs, flushes what they left in the queue and
// announces SHUTDOWN.
func (l *loop) shutdown(queue <-chan device.Event, reason string) {
	if l.detach != nil {
		l.detach()
	}
	for drained := false; !drained; {
		select {
		case ev := <-queue:
			l.deliver(ev)
		default:
			drained = true
		}
	}

	l.refresh()
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
