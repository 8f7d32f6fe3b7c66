package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jrzesz33/language_bus/internal/eventbus"
	"github.com/jrzesz33/language_bus/internal/gateway"
	"github.com/jrzesz33/language_bus/internal/logging"
	"github.com/jrzesz33/language_bus/internal/metrics"
	"github.com/jrzesz33/language_bus/internal/processor"
	"github.com/jrzesz33/language_bus/internal/topology"
	appconfig "github.com/jrzesz33/language_bus/pkg/config"
)

type serveOptions struct {
	variant string
	addr    string
	bus     string
	forward bool
	region  string
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway emulator with an in-memory bus",
		Long: `Serve answers requests the way the deployed REST API does: the mapping
template turns each request into a PutEvents call, the response is always
200 with an empty body, and unknown routes get 403.

Events land on an in-memory bus whose rule delivers english events to the
event processor in-process. With --forward they are published to the real
EventBridge bus instead. Prometheus metrics are served on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cfg, err := appconfig.Load()
	if err != nil {
		cfg = &appconfig.Config{
			GatewayVariant: gateway.VariantLanguage,
			ListenAddr:     ":8080",
			EventBusName:   topology.BusLogicalName,
			AWSRegion:      "us-east-1",
		}
	}

	cmd.Flags().StringVar(&opts.variant, "variant", cfg.GatewayVariant.String(), "Gateway variant: language or assembly")
	cmd.Flags().StringVar(&opts.addr, "addr", cfg.ListenAddr, "Listen address")
	cmd.Flags().StringVar(&opts.bus, "bus", cfg.EventBusName, "Event bus name")
	cmd.Flags().BoolVar(&opts.forward, "forward", false, "Publish to the EventBridge bus instead of the in-memory one")
	cmd.Flags().StringVar(&opts.region, "region", cfg.AWSRegion, "AWS region used with --forward")

	return cmd
}

// emulator is the local stand-in for the deployed topology
type emulator struct {
	topology *topology.Topology
	bus      *eventbus.Bus
	registry *prometheus.Registry
	handler  http.Handler
}

// newEmulator wires the gateway to publisher, or to an in-memory bus whose
// rules come from the validated topology when publisher is nil
func newEmulator(variant gateway.Variant, busName string, publisher eventbus.Publisher, recorder processor.Recorder, logger *slog.Logger) (*emulator, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(registry); err != nil {
		return nil, err
	}

	bus := eventbus.NewBus(busName, eventbus.WithLogger(logger), eventbus.WithMetrics(m))

	topo, err := topology.New(topology.Options{
		Variant:         variant,
		Runtime:         topology.RuntimeGo,
		BusName:         bus.Name(),
		BusArn:          bus.Arn(),
		FunctionArchive: "in-process",
	})
	if err != nil {
		return nil, err
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	fn := processor.NewHandler(logger.With(slog.String("component", "processor")), recorder)
	for _, rule := range topo.Rules {
		pattern, err := eventbus.ParsePattern([]byte(rule.Pattern))
		if err != nil {
			return nil, err
		}
		if err := bus.AddRule(rule.Name, pattern, fn); err != nil {
			return nil, err
		}
		logger.Debug("rule registered",
			slog.String("rule", rule.Name),
			slog.Any("sources", pattern.Sources()),
		)
	}

	if publisher == nil {
		publisher = bus
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(gateway.NewHandler(variant, busName, publisher, logger.With(slog.String("component", "gateway")), m))

	return &emulator{
		topology: topo,
		bus:      bus,
		registry: registry,
		handler:  router,
	}, nil
}

func runServe(ctx context.Context, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(os.Stderr)

	variant, err := gateway.ParseVariant(opts.variant)
	if err != nil {
		return err
	}

	var publisher eventbus.Publisher
	if opts.forward {
		awsCfg, err := loadAWSConfig(ctx, opts.region)
		if err != nil {
			return err
		}
		publisher = eventbus.NewEventBridgePublisher(eventbridge.NewFromConfig(awsCfg), logger)
	}

	emu, err := newEmulator(variant, opts.bus, publisher, nil, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              opts.addr,
		Handler:           emu.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway emulator listening",
			slog.String("addr", opts.addr),
			slog.String("variant", variant.String()),
			slog.String("route", variant.HTTPMethod()+" "+variant.Route()),
			slog.String("bus", opts.bus),
			slog.Bool("forward", opts.forward),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down gateway emulator")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
