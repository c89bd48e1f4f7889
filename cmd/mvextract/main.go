package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	mvcapture "github.com/e7canasta/orion-care-sensor/modules/mv-capture"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/dump"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/fanout"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/tracing"
)

// Version information
const version = "v0.1.0"

type cliFlags struct {
	configPath    string
	source        string
	output        string
	dumpFrames    bool
	dumpMVs       bool
	overlay       bool
	jpegQuality   int
	width         int
	maxFrames     int
	verbose       bool
	debug         bool
	metricsAddr   string
	otlpEndpoint  string
	mqttBroker    string
	bucket        string
	warmup        time.Duration
	statsInterval time.Duration
	showVersion   bool
}

func main() {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "YAML configuration file (optional)")
	flag.StringVar(&f.source, "source", "", "Video file or stream URL (may also be given as the first argument)")
	flag.StringVar(&f.output, "output", "", "Output directory (default out-<timestamp>)")
	flag.BoolVar(&f.dumpFrames, "dump-frames", true, "Write frames/frame-<n>.jpg")
	flag.BoolVar(&f.dumpMVs, "dump-mvs", true, "Write motion_vectors/mvs-<n>.npy")
	flag.BoolVar(&f.overlay, "overlay", true, "Draw motion vectors on dumped frames")
	flag.IntVar(&f.jpegQuality, "jpeg-quality", dump.DefaultJPEGQuality, "JPEG quality (1-100)")
	flag.IntVar(&f.width, "width", 0, "Resize dumped frames to this width (0 = native)")
	flag.IntVar(&f.maxFrames, "max-frames", 0, "Maximum frames to extract (0 = until end of stream)")
	flag.BoolVar(&f.verbose, "verbose", false, "Print per-frame details and the mean retrieve time")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address (e.g. :9090)")
	flag.StringVar(&f.otlpEndpoint, "otlp-endpoint", "", "OTLP HTTP traces endpoint (e.g. http://localhost:4318/v1/traces)")
	flag.StringVar(&f.mqttBroker, "mqtt-broker", "", "Publish motion summaries to this MQTT broker")
	flag.StringVar(&f.bucket, "bucket", "", "Also upload artifacts to this S3 bucket")
	flag.DurationVar(&f.warmup, "warmup", 0, "Measure stream stability for this long before extracting (live sources)")
	flag.DurationVar(&f.statsInterval, "stats-interval", 10*time.Second, "Interval between stats reports (0 = off)")
	flag.BoolVar(&f.showVersion, "version", false, "Show version and exit")
	flag.Parse()

	if f.showVersion {
		fmt.Printf("mvextract %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, &f)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid flags: %v\n", err)
		os.Exit(1)
	}

	if cfg.Source.URL == "" {
		fmt.Fprintf(os.Stderr, "Error: a video source is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  mvextract vid_h264.mp4\n")
		fmt.Fprintf(os.Stderr, "  mvextract -verbose -overlay=false -output ./run rtsp://192.168.1.100/stream\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logLevel := parseLevel(cfg.LogLevel)
	if f.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, &f, logger); err != nil {
		slog.Error("mv-capture: extraction failed", "error", err)
		os.Exit(1)
	}
}

// applyFlags overrides configuration values with explicitly set flags.
func applyFlags(cfg *config.Config, f *cliFlags) {
	if f.source == "" && flag.NArg() > 0 {
		f.source = flag.Arg(0)
	}
	if f.source != "" {
		cfg.Source.URL = f.source
	}

	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "output":
			cfg.Output.Dir = f.output
		case "dump-frames":
			cfg.Output.Frames = f.dumpFrames
		case "dump-mvs":
			cfg.Output.MotionVectors = f.dumpMVs
		case "overlay":
			cfg.Output.Overlay = f.overlay
		case "jpeg-quality":
			cfg.Output.JPEGQuality = f.jpegQuality
		case "width":
			cfg.Output.Width = f.width
		case "max-frames":
			cfg.Source.MaxFrames = f.maxFrames
		case "metrics-addr":
			cfg.Metrics.Addr = f.metricsAddr
		case "otlp-endpoint":
			cfg.Tracing.Endpoint = f.otlpEndpoint
		case "mqtt-broker":
			cfg.MQTT.Broker = f.mqttBroker
		case "bucket":
			cfg.Bucket.Name = f.bucket
		}
	})
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, cfg *config.Config, f *cliFlags, logger *slog.Logger) error {
	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			slog.Warn("mv-capture: tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	clock := &retrieveClock{Observer: metrics.New(reg)}

	stream, err := mvcapture.NewStream(mvcapture.StreamConfig{
		Source:                cfg.Source.URL,
		SourceStream:          cfg.Source.Name,
		DisableReconnect:      cfg.Reconnect.Disabled,
		MaxReconnectAttempts:  cfg.Reconnect.MaxAttempts,
		ReconnectInitialDelay: cfg.Reconnect.InitialDelay,
		ReconnectMaxDelay:     cfg.Reconnect.MaxDelay,
		Options: []mvcapture.Option{
			mvcapture.WithLogger(logger),
			mvcapture.WithObserver(clock),
			mvcapture.WithThreadCount(cfg.Source.Threads),
			mvcapture.WithSkipBudget(cfg.Source.SkipBudget),
			mvcapture.WithOpenTimeout(cfg.Source.OpenTimeout),
			mvcapture.WithReadTimeout(cfg.Source.ReadTimeout),
			mvcapture.WithRTSPTransport(cfg.Source.RTSPTransport),
		},
	})
	if err != nil {
		return err
	}
	reg.MustRegister(metrics.NewStreamCollector(stream.Stats))

	runName := dump.DefaultRunName(time.Now())
	sinks, err := openSinks(ctx, cfg, runName, logger)
	if err != nil {
		return err
	}

	bus := fanout.New[mvcapture.Sample]()
	status, err := bus.SubscribeLatest("status")
	if err != nil {
		return err
	}

	var em *emitter.MQTT
	var summaries chan mvcapture.Sample
	if cfg.MQTT.Broker != "" {
		em, err = emitter.NewMQTT(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		}, logger)
		if err != nil {
			return err
		}
		if err := em.Connect(ctx); err != nil {
			return err
		}
		defer em.Disconnect()

		summaries = make(chan mvcapture.Sample, 64)
		if err := bus.Subscribe("mqtt", summaries); err != nil {
			return err
		}
	}

	printBanner(cfg, runName, sinks)

	samples, err := stream.Start(ctx)
	if err != nil {
		return err
	}

	if f.warmup > 0 {
		fmt.Printf("Running warmup (%s) to measure stream stability...\n", f.warmup)
		ws, err := stream.Warmup(ctx, f.warmup)
		if ws != nil {
			printWarmup(ws)
		}
		if err != nil && !errors.Is(err, mvcapture.ErrWarmupUnstable) {
			stream.Stop()
			return err
		}
	}

	startTime := time.Now()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, reg)
		g.Go(func() error { return metrics.Serve(gctx, srv, logger) })
	}

	if em != nil {
		g.Go(func() error {
			em.Run(ctx, summaries)
			return nil
		})
	}

	if f.statsInterval > 0 {
		g.Go(func() error {
			reportStats(gctx, f.statsInterval, startTime, stream, status)
			return nil
		})
	}

	var steps int
	var busStats fanout.BusStats
	g.Go(func() error {
		defer cancelRun()
		defer func() {
			busStats = bus.Stats()
			bus.Close()
			if summaries != nil {
				close(summaries)
			}
		}()

		var err error
		steps, err = extract(gctx, samples, sinks, bus, cfg.Source.MaxFrames, f.verbose)
		return err
	})

	err = g.Wait()

	slog.Info("mv-capture: stopping stream")
	if stopErr := stream.Stop(); stopErr != nil {
		slog.Error("mv-capture: error stopping stream", "error", stopErr)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, s := range sinks {
		err = errors.Join(err, s.Close(closeCtx))
	}

	printFinal(stream.Stats(), steps, time.Since(startTime), clock, busStats, em, f.verbose)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openSinks(ctx context.Context, cfg *config.Config, runName string, logger *slog.Logger) ([]dump.Sink, error) {
	opts := dump.Options{
		Frames:        cfg.Output.Frames,
		MotionVectors: cfg.Output.MotionVectors,
		Overlay:       cfg.Output.Overlay,
		JPEGQuality:   cfg.Output.JPEGQuality,
		Width:         cfg.Output.Width,
	}

	var sinks []dump.Sink
	if cfg.Output.Enabled() || cfg.Output.Dir != "" {
		root := cfg.Output.Dir
		if root == "" {
			root = runName
		}
		d, err := dump.NewDir(root, opts)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}

	if cfg.Bucket.Name != "" {
		prefix := cfg.Bucket.Prefix
		if prefix == "" {
			prefix = runName
		}
		b, err := dump.NewBucket(ctx, dump.BucketConfig{
			Endpoint:  cfg.Bucket.Endpoint,
			AccessKey: cfg.Bucket.AccessKey,
			SecretKey: cfg.Bucket.SecretKey,
			UseSSL:    cfg.Bucket.UseSSL,
			Bucket:    cfg.Bucket.Name,
			Prefix:    prefix,
		}, opts, logger)
		if err != nil {
			for _, s := range sinks {
				s.Close(ctx)
			}
			return nil, err
		}
		sinks = append(sinks, b)
	}
	return sinks, nil
}

// extract writes every sample to the sinks in order and publishes it to
// the bus. It returns the number of samples handled.
func extract(ctx context.Context, samples <-chan mvcapture.Sample, sinks []dump.Sink, bus *fanout.Bus[mvcapture.Sample], maxFrames int, verbose bool) (int, error) {
	step := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
			return step, ctx.Err()

		case s, ok := <-samples:
			if !ok {
				slog.Info("mv-capture: stream finished", "frames", step)
				return step, nil
			}

			for _, sink := range sinks {
				if err := sink.Write(ctx, step, s.Result); err != nil {
					return step, fmt.Errorf("step %d: %w", step, err)
				}
			}
			bus.Publish(s)

			if verbose {
				rows, cols := s.MotionVectors.Shape()
				fmt.Printf("frame %-6d | seq %-8d | type %s | timestamp %.6f | motion vectors (%d, %d)\n",
					step, s.Seq, s.FrameType, s.Timestamp, rows, cols)
			}
			step++

			if maxFrames > 0 && step >= maxFrames {
				fmt.Printf("\nReached maximum frames (%d), stopping...\n", maxFrames)
				return step, nil
			}
		}
	}
}
