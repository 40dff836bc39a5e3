package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/google/uuid"
	"github.com/mealdex/recipe-crawler/config"
)

var meter metric.Meter

type MetricsProvider struct {
	AppMetrics *AppMetrics
	Close      func()
}

// AppMetrics are closure-wrapped counters so call sites stay one-liners and
// the disabled path costs nothing.
type AppMetrics struct {
	FetchSuccessCnt    func(count int64)
	FetchFailureCnt    func(count int64)
	RecipeCreatedCnt   func(count int64)
	ExtractionFailCnt  func(count int64)
	CollectionFoundCnt func(count int64)
	DLQSendCnt         func(count int64)
	JobCompletedCnt    func(count int64)
	JobFailedCnt       func(count int64)
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider

	if cfg.TelemetrySettings.Enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}

	fetchSuccessCounter, err := meter.Int64Counter("recipe-crawler.fetch.success",
		metric.WithDescription("The number of fetch attempts that yielded a usable page"),
		metric.WithUnit("{fetches}"))
	fetchFailureCounter, err := meter.Int64Counter("recipe-crawler.fetch.fail",
		metric.WithDescription("The number of URLs for which every strategy failed"),
		metric.WithUnit("{fetches}"))
	recipeCreatedCounter, err := meter.Int64Counter("recipe-crawler.recipes.created",
		metric.WithDescription("The number of recipes extracted and persisted"),
		metric.WithUnit("{recipes}"))
	extractionFailCounter, err := meter.Int64Counter("recipe-crawler.extraction.fail",
		metric.WithDescription("The number of fetched pages no parser could turn into a valid recipe"),
		metric.WithUnit("{pages}"))
	collectionFoundCounter, err := meter.Int64Counter("recipe-crawler.collections.expanded",
		metric.WithDescription("The number of roundup pages expanded into individual recipe links"),
		metric.WithUnit("{pages}"))
	dlqSendCounter, err := meter.Int64Counter("recipe-crawler.dlq.send",
		metric.WithDescription("The number of URLs sent to the dead-letter queue"),
		metric.WithUnit("{messages}"))
	jobCompletedCounter, err := meter.Int64Counter("recipe-crawler.jobs.completed",
		metric.WithDescription("The number of crawl jobs that ran to completion"),
		metric.WithUnit("{jobs}"))
	jobFailedCounter, err := meter.Int64Counter("recipe-crawler.jobs.failed",
		metric.WithDescription("The number of crawl jobs aborted by an escaped error"),
		metric.WithUnit("{jobs}"))
	if err != nil {
		slog.Error("failed to create telemetry counters.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	guard := func(counter metric.Int64Counter) func(int64) {
		return func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				counter.Add(ctx, count)
			}
		}
	}
	metricsProvider.AppMetrics = &AppMetrics{
		FetchSuccessCnt:    guard(fetchSuccessCounter),
		FetchFailureCnt:    guard(fetchFailureCounter),
		RecipeCreatedCnt:   guard(recipeCreatedCounter),
		ExtractionFailCnt:  guard(extractionFailCounter),
		CollectionFoundCnt: guard(collectionFoundCounter),
		DLQSendCnt:         guard(dlqSendCounter),
		JobCompletedCnt:    guard(jobCompletedCounter),
		JobFailedCnt:       guard(jobFailedCounter),
	}

	return metricsProvider
}

// NoopMetrics returns counters that discard every increment, for tests and
// for wiring code paths before the provider exists.
func NoopMetrics() *AppMetrics {
	discard := func(int64) {}
	return &AppMetrics{
		FetchSuccessCnt:    discard,
		FetchFailureCnt:    discard,
		RecipeCreatedCnt:   discard,
		ExtractionFailCnt:  discard,
		CollectionFoundCnt: discard,
		DLQSendCnt:         discard,
		JobCompletedCnt:    discard,
		JobFailedCnt:       discard,
	}
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	return resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.ServiceInstanceID(uuid.New().String()),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(exporter sdkmetric.Exporter, r resource.Resource) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(&r),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
}
