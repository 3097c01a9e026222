package telemetry

import (
	"context"
	"errors"
	"time"

	"jobscout-backend/lib/configutil"

	"go.opentelemetry.io/otel"
)

type OtlpConnConfig struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

type OtlpConfig struct {
	Traces  OtlpConnConfig `json:"traces"`
	Metrics OtlpConnConfig `json:"metrics"`
}

type Config struct {
	Otlp OtlpConfig `json:"otlp"`
}

var active *providers

// searches up the filesystem from the cwd to find a file
// called telemetry.json5, once found it will then use it
// as a config to setup telemetry
func SetupFromEnv(ctx context.Context, serviceName string) error {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return err
	}
	return Setup(ctx, serviceName, config)
}

func Setup(ctx context.Context, serviceName string, config Config) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := newResource(serviceName)
	if err != nil {
		return err
	}

	tracerProvider, err := newTraceProvider(ctx, r, config)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMetricProvider(ctx, r, config)
	if err != nil {
		return err
	}
	otel.SetMeterProvider(meterProvider)

	active = &providers{
		tracer: tracerProvider,
		meter:  meterProvider,
	}
	return nil
}

func Shutdown(ctx context.Context) error {
	if active == nil {
		return nil
	}
	errlist := []error{}
	err := active.tracer.Shutdown(ctx)
	if err != nil {
		errlist = append(errlist, err)
	}
	err = active.meter.Shutdown(ctx)
	if err != nil {
		errlist = append(errlist, err)
	}
	active = nil
	return errors.Join(errlist...)
}
