// Command feeding-monitor watches a feeding bowl through a network camera,
// decides when each tagged animal starts and stops eating, and reports the
// sessions to the activity service and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/feeding-monitor/internal/api"
	"github.com/sweeney/feeding-monitor/internal/capture"
	"github.com/sweeney/feeding-monitor/internal/config"
	"github.com/sweeney/feeding-monitor/internal/gpio"
	"github.com/sweeney/feeding-monitor/internal/log"
	"github.com/sweeney/feeding-monitor/internal/logic"
	"github.com/sweeney/feeding-monitor/internal/monitor"
	"github.com/sweeney/feeding-monitor/internal/mqtt"
	"github.com/sweeney/feeding-monitor/internal/notify"
	"github.com/sweeney/feeding-monitor/internal/status"
	"github.com/sweeney/feeding-monitor/internal/telemetry"
	"github.com/sweeney/feeding-monitor/internal/vision"
	"github.com/sweeney/feeding-monitor/internal/web"
)

// version is set at build time via -ldflags.
var version = "dev"

// shutdownTimeout bounds the final activity cleanup and HTTP shutdown.
const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the feeding monitor (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context())
		},
	}

	root := &cobra.Command{
		Use:           "feeding-monitor",
		Short:         "Feeding session monitor",
		Long:          `feeding-monitor tracks ArUco-tagged animals at a feeding bowl and records eating sessions.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCmd.RunE,
	}
	root.AddCommand(runCmd, newProbeCmd(), newConfigCmd())
	return root
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the activity API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil && !errors.Is(err, config.ErrMissingCameraURL) {
				return err
			}
			client := api.NewClient(cfg.APIBaseURL, cfg.APIKey, api.NewHTTPClient(cfg.APITimeout))
			if err := client.Probe(cmd.Context()); err != nil {
				return fmt.Errorf("activity API at %s: %w", cfg.APIBaseURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activity API at %s is reachable\n", cfg.APIBaseURL)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			out := cmd.OutOrStdout()
			for _, e := range cfg.Entries() {
				fmt.Fprintf(out, "%s=%s\n", e.Key, e.Value)
			}
			for _, w := range cfg.Warnings {
				fmt.Fprintf(out, "# warning: %s\n", w)
			}
			return err
		},
	}
}

func runMonitor(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Init(cfg.LogLevel)
	for _, w := range cfg.Warnings {
		log.Warn("config: " + w)
	}
	log.Info("feeding-monitor starting", "version", version, "camera", config.RedactURL(cfg.CameraURL))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()
	metrics, err := telemetry.NewMetrics(telemetry.Meter("feeding-monitor"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Camera. A failed first connection is retried by the acquisition loop.
	source := capture.NewSource(cfg.Capture(), vision.Dialer(vision.DeviceConfig{
		URL:        cfg.CameraURL,
		Width:      cfg.CameraWidth,
		Height:     cfg.CameraHeight,
		BufferSize: cfg.CameraBufferSize,
	}))
	if err := source.Connect(ctx); err != nil {
		log.Error("camera: initial connection failed, retrying in background", "err", err)
	}
	source.Start(ctx)

	detector := vision.NewArucoDetector(logic.LocateConfig{
		BowlID:     cfg.BowlMarkerID,
		BowlSize:   cfg.BowlMarkerSize,
		AnimalSize: cfg.DefaultMarkerSize,
		Intrinsics: cfg.Intrinsics,
	})
	defer detector.Close()

	client := api.NewClient(cfg.APIBaseURL, cfg.APIKey, api.NewHTTPClient(cfg.APITimeout))
	if cfg.APIEnabled {
		if err := client.Probe(ctx); err != nil {
			log.Warn("api: service not reachable at startup", "url", cfg.APIBaseURL, "err", err)
		} else {
			log.Info("api: service reachable", "url", cfg.APIBaseURL)
		}
	} else {
		log.Info("api: notifications disabled")
	}
	notifier := notify.New(client, cfg.APIEnabled, cfg.ActivityTypeMapping)

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	if cfg.MQTTBroker != "" {
		p := mqtt.NewRealPublisher(cfg.MQTTBroker)
		defer p.Close()
		publisher = p
	}

	var led gpio.Indicator = gpio.NopIndicator{}
	if cfg.LEDPin >= 0 {
		ind, err := gpio.NewRealIndicator(cfg.LEDPin)
		if err != nil {
			log.Warn("gpio: indicator unavailable", "pin", cfg.LEDPin, "err", err)
		} else {
			led = ind
		}
	}

	streaming := cfg.StreamingEnabled && cfg.HTTPAddr != ""
	tracker := status.NewTracker(time.Now(), status.Config{
		BowlMarkerID:     cfg.BowlMarkerID,
		EnterThreshold:   cfg.EnterThreshold,
		ExitThreshold:    cfg.ExitThreshold,
		WindowSize:       cfg.WindowSize,
		HeartbeatMs:      cfg.HeartbeatInterval.Milliseconds(),
		Broker:           cfg.MQTTBroker,
		HTTPAddr:         cfg.HTTPAddr,
		APIEnabled:       cfg.APIEnabled,
		StreamingEnabled: streaming,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	deps := monitor.Deps{
		Source:    source,
		Detector:  detector,
		Notifier:  notifier,
		Publisher: publisher,
		LED:       led,
		Status:    tracker,
		Metrics:   metrics,
		Network:   readNetworkInfo,
	}
	var preview *web.Preview
	if streaming {
		preview = web.NewPreview()
		deps.Encoder = vision.JPEGEncoder{Quality: cfg.StreamJPEGQuality}
		deps.Preview = preview
	}

	mon := monitor.New(monitor.Config{
		Tracker:           cfg.Tracker(),
		PollInterval:      cfg.PollInterval,
		IdleDelay:         cfg.IdleDelay,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, deps)
	mon.Startup()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := "STOPPED"
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case s := <-sigCh:
			reason = signalName(s)
			log.Info("received signal, shutting down", "signal", reason)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		return mon.Run(gctx)
	})

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, preview)
		g.Go(func() error {
			log.Info("http status server listening", "addr", cfg.HTTPAddr, "streaming", streaming)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	log.Info("started",
		"poll", cfg.PollInterval,
		"heartbeat", cfg.HeartbeatInterval,
		"broker", cfg.MQTTBroker,
		"api_enabled", cfg.APIEnabled,
	)

	runErr := g.Wait()
	if runErr != nil {
		reason = "ERROR"
		log.Error("monitor stopped", "err", runErr)
	}

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	mon.Shutdown(sctx, reason)
	return runErr
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
