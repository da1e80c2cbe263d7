// Package telemetry wires the gateway's OpenTelemetry metric pipeline:
// a process-wide MeterProvider, the counters/histograms Dispatcher and
// StateLoader record against, and a periodic exporter flush so a
// long-running gateway doesn't wait for shutdown to emit anything.
package telemetry

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/null-runner/mcp-gateway/pkg/log"
)

var (
	meter            metric.Meter
	toolCalls        metric.Int64Counter
	toolCallDuration metric.Float64Histogram
	stateRebuilds    metric.Int64Counter
	runtimeCount     metric.Int64Gauge
)

// Init installs a process-wide MeterProvider backed by a ManualReader
// and registers the gateway's instruments. Safe to call once at startup; a no-op provider is used
// until this runs, so Record* calls before Init are harmless.
func Init() {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	meter = provider.Meter("github.com/null-runner/mcp-gateway")

	var err error
	toolCalls, err = meter.Int64Counter("gateway.tool.calls",
		metric.WithDescription("tools/call invocations, by prefix and outcome"))
	if err != nil {
		log.Warnf(nil, "telemetry: registering tool call counter: %v", err)
	}
	toolCallDuration, err = meter.Float64Histogram("gateway.tool.call.duration_ms",
		metric.WithDescription("tools/call latency in milliseconds"))
	if err != nil {
		log.Warnf(nil, "telemetry: registering tool call duration histogram: %v", err)
	}
	stateRebuilds, err = meter.Int64Counter("gateway.state.rebuilds",
		metric.WithDescription("state rebuild generations, by outcome"))
	if err != nil {
		log.Warnf(nil, "telemetry: registering state rebuild counter: %v", err)
	}
	runtimeCount, err = meter.Int64Gauge("gateway.state.runtimes",
		metric.WithDescription("live runtime prefixes in the current state generation"))
	if err != nil {
		log.Warnf(nil, "telemetry: registering runtime gauge: %v", err)
	}
}

// RecordToolCall records one tools/call outcome for prefix/tool.
func RecordToolCall(ctx context.Context, prefix, tool string, duration time.Duration, isError bool) {
	if toolCalls == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("prefix", prefix),
		attribute.String("tool", tool),
		attribute.Bool("error", isError),
	)
	toolCalls.Add(ctx, 1, attrs)
	toolCallDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordStateRebuild records one state.BuildFrom generation: how many
// runtimes it produced and how many per-prefix failures it collected.
func RecordStateRebuild(ctx context.Context, runtimes, failures int) {
	if stateRebuilds == nil {
		return
	}
	outcome := "ok"
	if failures > 0 {
		outcome = "partial"
	}
	stateRebuilds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	runtimeCount.Record(ctx, int64(runtimes))
}

// PeriodicFlush force-flushes the MeterProvider every interval until
// ctx is canceled. Only a ManualReader-backed provider (the one Init
// installs) needs this; it exists because nothing else in this binary
// periodically scrapes the meter provider, and a ManualReader only
// flushes when asked.
func PeriodicFlush(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	debug := os.Getenv("MCP_GATEWAY_TELEMETRY_DEBUG") != ""

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	mp, ok := otel.GetMeterProvider().(interface{ ForceFlush(context.Context) error })
	if !ok {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := mp.ForceFlush(flushCtx)
			cancel()
			if err != nil && debug {
				log.Warnf(nil, "telemetry: periodic flush: %v", err)
			}
		}
	}
}
