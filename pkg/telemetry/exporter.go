package telemetry

import (
	"drop_engine/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the Prometheus exporter and sets the global meter
// provider. Lighter alternative to Setup for processes that only need
// metrics.
func InitMetrics() error {
	exporter, err := prometheus.New()
	if err != nil {
		return err
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	holder := GetGlobalMetrics()
	if err := holder.InitMetrics(provider.Meter("drop_engine_core")); err != nil {
		logging.GetGlobalLogger().Error("Failed to initialize instruments", "error", err.Error())
		return err
	}

	return nil
}
