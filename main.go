package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/lib/pq"
	"github.com/lmittmann/tint"
	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/aws_s3"
	"github.com/mealdex/recipe-crawler/internal/broker"
	cacheClient "github.com/mealdex/recipe-crawler/internal/cache"
	"github.com/mealdex/recipe-crawler/internal/collection"
	"github.com/mealdex/recipe-crawler/internal/extract"
	"github.com/mealdex/recipe-crawler/internal/limiter"
	"github.com/mealdex/recipe-crawler/internal/orchestrator"
	"github.com/mealdex/recipe-crawler/internal/persistence"
	"github.com/mealdex/recipe-crawler/internal/strategy"
	"github.com/mealdex/recipe-crawler/internal/telemetry"
	"github.com/mealdex/recipe-crawler/internal/urlcache"
	"github.com/mealdex/recipe-crawler/internal/worker"
)

var (
	cfg   *config.Config
	db    *sql.DB
	s3    aws_s3.BucketClient
	cache cacheClient.CachedClient
	dlq   broker.DeadLetterClient
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	setupLogger()
	metrics := telemetry.SetupMetrics(context.Background(), cfg)
	defer metrics.Close()
	db = setupDatabase()
	defer closeDatabase()

	if cfg.S3Settings != nil && cfg.S3Settings.Enabled {
		s3 = aws_s3.NewS3BucketClient(cfg)
	} else {
		s3 = aws_s3.NoopBucketClient{}
	}
	if cfg.CacheSettings != nil && cfg.CacheSettings.Enabled {
		cache = cacheClient.NewMemcachedClient(cfg.CacheSettings)
	} else {
		cache = cacheClient.NoopClient{}
	}
	defer cache.Close()
	if cfg.KafkaSettings != nil && cfg.KafkaSettings.Producer != nil &&
		len(cfg.KafkaSettings.Producer.Addr) > 0 {
		dlq = broker.NewKafkaDLQ(cfg.ServiceName, cfg.KafkaSettings.Producer)
	} else {
		dlq = broker.NoopDLQ{}
	}
	defer dlq.Close()

	httpTransport := getHttpTransport()
	storage := persistence.NewRecipeRepository(db)
	urlCache := urlcache.NewBoundedCache(cfg.UrlCacheSettings)
	rateLimiter := limiter.NewAdaptiveRateLimiter(cfg.RateLimiterSetting)
	throttle := limiter.NewDomainThrottle(cfg.ThrottleSettings)
	detector := collection.NewDetector(cfg.ExtractionSettings, cfg.CrawlerSettings.CollectionLinkCap)
	pipeline := extract.NewPipeline(cfg.ExtractionSettings)

	var archive *strategy.ArchiveClient
	if cfg.StrategySettings.ArchiveEnabled {
		archive = strategy.NewArchiveClient(cfg.StrategySettings)
	}
	executor := newExecutor(httpTransport, archive)
	catalog := strategy.Catalog(cfg.StrategySettings, cfg.HttpClientSettings.RequestTimeout)

	crawlWorker := &worker.CrawlWorker{
		Cfg:         cfg,
		Executor:    executor,
		Catalog:     catalog,
		Pipeline:    pipeline,
		Detector:    detector,
		Storage:     storage,
		UrlCache:    urlCache,
		SharedCache: cache,
		Limiter:     rateLimiter,
		Throttle:    throttle,
		S3:          s3,
		DLQ:         dlq,
		Metrics:     metrics.AppMetrics,
	}

	service := orchestrator.NewCrawlService(orchestrator.Deps{
		Cfg:       cfg,
		Worker:    crawlWorker,
		Storage:   storage,
		UrlCache:  urlCache,
		Limiter:   rateLimiter,
		Detector:  detector,
		Transport: httpTransport,
	})

	slog.Info("starting application on port "+cfg.Port, slog.String("env", cfg.Env),
		slog.Int("strategies", len(catalog)))
	service.StartAutoCrawling()
	go healthCheckHandler()

	<-ctx.Done()
	slog.Info("stopping server...")
	service.StopAutoCrawling()
	slog.Info("server stopped.")
}

func newExecutor(transport *http.Transport, archive *strategy.ArchiveClient) *strategy.Executor {
	if archive == nil {
		return strategy.NewExecutor(cfg.StrategySettings, transport, nil)
	}
	return strategy.NewExecutor(cfg.StrategySettings, transport, archive)
}

func setupLogger() *slog.Logger {
	envLogLevel := strings.ToLower(cfg.LogLevel)
	var slogLevel slog.Level
	err := slogLevel.UnmarshalText([]byte(envLogLevel))
	if err != nil {
		log.Printf("encountenred log level: '%s'. The package does not support custom log levels", envLogLevel)
		slogLevel = slog.LevelDebug
	}
	log.Printf("slog level overwritten to '%v'", slogLevel)
	slog.SetLogLoggerLevel(slogLevel)

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs,
			NoColor: func() bool {
				if cfg.Env == "local" {
					return false
				}
				return true
			}()}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func setupDatabase() *sql.DB {
	slog.Info("connecting to the database...")
	connStr := fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		cfg.DbSettings.User,
		cfg.DbSettings.Password,
		cfg.DbSettings.Host,
		cfg.DbSettings.Port,
		cfg.DbSettings.Name,
	)
	connector, err := pq.NewConnector(connStr)
	if err != nil {
		slog.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database := sql.OpenDB(connector)
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		slog.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			slog.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				slog.Error("failed to establish database connection.")
				os.Exit(1)
			}
			slog.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	slog.Info("connected to the database!")

	return database
}

func closeDatabase() {
	slog.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		slog.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}

func healthCheckHandler() {
	http.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		slog.Error("http server error", slog.String("err", err.Error()))
	}
}

func getHttpTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        cfg.HttpClientSettings.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.HttpClientSettings.MaxIdleConnectionsPerHost,
		MaxConnsPerHost:     cfg.HttpClientSettings.MaxConnectionsPerHost,
		IdleConnTimeout:     cfg.HttpClientSettings.IdleConnectionTimeout,
		TLSHandshakeTimeout: cfg.HttpClientSettings.TlsHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.HttpClientSettings.DialTimeout,
			KeepAlive: cfg.HttpClientSettings.DialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.HttpClientSettings.TlsInsecureSkipVerify,
		},
	}
}
