// Package otel wires the OpenTelemetry meter provider behind a Prometheus exporter
// and holds the usagi instruments: deliveries, archives, ticks, votes, merges, jobs.
package otel

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/ankittk/usagi"

// Provider is the installed meter provider and the /metrics handler backed by it.
type Provider struct {
	Handler http.Handler
	sdk     *sdkmetric.MeterProvider
}

// Shutdown flushes and stops the provider. Safe on a nil Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Setup installs a global MeterProvider exporting to a private Prometheus registry,
// which also carries the Go runtime and process collectors, then creates the usagi
// instruments. The returned Provider serves the registry in OpenMetrics format.
func Setup(ctx context.Context, serviceName, version string) (*Provider, error) {
	if serviceName == "" {
		serviceName = "usagi"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if version != "" {
		attrs = append(attrs, semconv.ServiceVersion(version))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(provider)
	p := &Provider{
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}),
		sdk:     provider,
	}
	if err := InitMetrics(ctx); err != nil {
		return p, errors.Join(errors.New("otel: instruments"), err)
	}
	return p, nil
}

func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

var (
	AttrRole    = attribute.Key("role")
	AttrAgent   = attribute.Key("agent")
	AttrKind    = attribute.Key("kind")
	AttrOutcome = attribute.Key("outcome")
	AttrResult  = attribute.Key("result")
)
