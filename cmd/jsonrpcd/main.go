// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command jsonrpcd serves a small set of demo methods on every configured
// JSON-RPC listener.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/jsonrpc"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("jsonrpcd exited")
	}
}

func run(ctx context.Context, cfg *Config, log zerolog.Logger) error {
	observer := jsonrpc.Observer(jsonrpc.LogObserver{Log: log})
	if cfg.Metrics {
		provider, err := newMeterProvider(cfg.MetricsInterval)
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("flush metrics")
			}
		}()
		metrics, err := jsonrpc.NewMetricsObserver(provider.Meter("jsonrpcd"))
		if err != nil {
			return err
		}
		observer = jsonrpc.MultiObserver{observer, metrics}
	}

	router := newRouter(cfg.version())

	g, ctx := errgroup.WithContext(ctx)
	for _, lc := range cfg.Listeners {
		ln, err := jsonrpc.Listen(lc.Address, router,
			jsonrpc.WithServerVersion(cfg.version()),
			jsonrpc.WithServerTransport(lc.Transport),
			jsonrpc.WithServerLogger(log),
			jsonrpc.WithServerObserver(observer),
		)
		if err != nil {
			return fmt.Errorf("listen %s: %w", lc.Address, err)
		}
		log.Info().Str("addr", ln.Addr()).Str("transport", lc.Transport).Msg("listening")
		g.Go(func() error {
			defer ln.Close()
			return ln.Serve(ctx)
		})
	}
	return g.Wait()
}

// newMeterProvider exports the event counter to stderr every interval.
func newMeterProvider(interval time.Duration) (*sdkmetric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}

// newRouter registers the demo methods. "ping" calls back into the peer,
// which must answer "pong".
func newRouter(version jsonrpc.Version) *jsonrpc.Router {
	r := jsonrpc.NewRouter(version)
	r.Handle("add", jsonrpc.Typed(func(_ context.Context, _ *jsonrpc.Client, p []float64) (float64, error) {
		var sum float64
		for _, v := range p {
			sum += v
		}
		return sum, nil
	}))
	r.Handle("echo", func(_ context.Context, _ *jsonrpc.Client, params json.RawMessage) (any, error) {
		return params, nil
	})
	r.Handle("delay", jsonrpc.Typed(func(ctx context.Context, _ *jsonrpc.Client, p []int) (int, error) {
		if len(p) != 1 {
			return 0, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "", "expected [milliseconds]")
		}
		select {
		case <-time.After(time.Duration(p[0]) * time.Millisecond):
			return p[0], nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}))
	r.Handle("ping", func(ctx context.Context, peer *jsonrpc.Client, _ json.RawMessage) (any, error) {
		if peer == nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "ping needs a persistent connection", nil)
		}
		var answer string
		if err := peer.CallResult(ctx, "pong", nil, &answer); err != nil {
			return nil, err
		}
		return answer, nil
	})
	return r
}
