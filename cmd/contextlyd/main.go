package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/contextly/contextly-ledger/internal/config"
	"github.com/contextly/contextly-ledger/internal/infrastructure/providers"
	"github.com/contextly/contextly-ledger/internal/infrastructure/repository"
	"github.com/contextly/contextly-ledger/internal/present/rest"
	restmiddleware "github.com/contextly/contextly-ledger/internal/present/rest/middleware"
	"github.com/contextly/contextly-ledger/internal/service"
	"github.com/contextly/contextly-ledger/internal/settlement"
	"github.com/contextly/contextly-ledger/internal/usecase"
	"github.com/contextly/contextly-ledger/policy"
)

func main() {
	configPath := flag.String("config", "/etc/contextly/config.yaml", "path to the config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	db, err := providers.NewDatabase(conf.Server)
	if err != nil {
		panic("failed to connect database")
	}
	if err := providers.MigrateDatabase(db); err != nil {
		panic("failed to migrate database")
	}

	rdb := providers.NewRedis(conf.Server)
	mc := providers.NewMemcache(conf.Server.MemcachedAddr)
	relay := providers.NewSettlementGateway(conf.Settlement, conf.Service.PrivateKey)

	identityRepo := repository.NewIdentityRepository(db)
	contributionRepo := repository.NewContributionRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	earningsRepo := repository.NewEarningsRepository(db, mc)

	credential := service.NewCredentialService(conf.Auth.ChallengeWindow)
	sessions := service.NewSessionService(rdb, conf.Service.FQDN, conf.Service.Address, conf.Service.PrivateKey)
	signal := service.NewSignalService(rdb)

	accumulator := settlement.NewAccumulator(contributionRepo, batchRepo, settlement.AccumulatorConfig{
		MaxBatchSize:  conf.Ledger.MaxBatchSize,
		MaxInterval:   conf.Ledger.MaxBatchInterval,
		MinSettlement: conf.Ledger.MinSettlement,
	})

	authUC := usecase.NewAuthUsecase(credential, identityRepo, sessions, conf.Auth.ChallengeWindow, conf.Auth.SessionTTL)
	contributionUC := usecase.NewContributionUsecase(contributionRepo, identityRepo, policy.NewWeightedSum(policy.DefaultWeights), accumulator)
	earningsUC := usecase.NewEarningsUsecase(earningsRepo)

	coordinator := settlement.NewCoordinator(relay, contributionUC, batchRepo, signal, settlement.CoordinatorConfig{
		MaxAttempts:   conf.Settlement.MaxAttempts,
		RetryInterval: 2 * time.Second,
	})

	if err := accumulator.Recover(ctx); err != nil {
		slog.Error("startup recovery failed",
			slog.String("error", err.Error()),
			slog.String("module", "settlement"),
		)
	}
	go accumulator.Run(ctx)
	go func() {
		if err := coordinator.Run(ctx, accumulator.Batches()); err != nil {
			slog.Error("settlement coordinator stopped",
				slog.String("error", err.Error()),
				slog.String("module", "settlement"),
			)
		}
	}()

	handler := rest.NewHandler(conf, authUC, contributionUC, earningsUC, signal)
	authMiddleware := restmiddleware.NewAuthMiddleware(sessions)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("contextly-ledger"))
	}
	e.Use(authMiddleware.IdentifyRequester)

	handler.RegisterRoutes(e)

	e.Logger.Fatal(e.Start(conf.Server.Listen))
}

func setupTraceProvider(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceName("contextly-ledger"),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
