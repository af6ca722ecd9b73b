package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/adapter/comtrade"
	"github.com/venwatch/venwatch/internal/adapter/edgar"
	"github.com/venwatch/venwatch/internal/adapter/fred"
	"github.com/venwatch/venwatch/internal/adapter/gdelt"
	"github.com/venwatch/venwatch/internal/adapter/reliefweb"
	"github.com/venwatch/venwatch/internal/adapter/trends"
	"github.com/venwatch/venwatch/internal/adapter/worldbank"
	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/config"
	"github.com/venwatch/venwatch/internal/correlation"
	"github.com/venwatch/venwatch/internal/entity"
	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/forecast"
	"github.com/venwatch/venwatch/internal/graph"
	"github.com/venwatch/venwatch/internal/llm"
	"github.com/venwatch/venwatch/internal/persistence"
	"github.com/venwatch/venwatch/internal/persistence/postgres"
	"github.com/venwatch/venwatch/internal/pipeline"
	"github.com/venwatch/venwatch/internal/sanctions"
	"github.com/venwatch/venwatch/internal/score/aggregate"
	"github.com/venwatch/venwatch/internal/score/hybrid"
	"github.com/venwatch/venwatch/internal/score/quant"
	"github.com/venwatch/venwatch/internal/trending"
)

// dbTimeout bounds individual store calls.
const dbTimeout = 10 * time.Second

// app holds the wired dependency graph shared by the subcommands.
type app struct {
	cfg *config.Config
	db  *sqlx.DB
	rdb *redis.Client
	bus bus.EventBus

	events     persistence.EventStore
	entities   persistence.EntityStore
	sanctions  persistence.SanctionsStore
	spikes     persistence.SpikeStore
	indicators persistence.IndicatorStore
	tradeFlows persistence.TradeFlowStore
	forecasts  persistence.ForecastStore

	registry *adapter.Registry
	tracker  *trending.Tracker
	llm      *llm.Analyzer
	chat     llm.Client
	screener *sanctions.Screener
}

// newApp loads configuration and connects the shared stores.
func newApp(cmd *cobra.Command) (*app, error) {
	setupLogging(cmd)
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	busCfg := bus.Config{
		MaxRetries:   cfg.Bus.MaxRetries,
		Prefetch:     cfg.Bus.Prefetch,
		MaxStreamLen: cfg.Bus.MaxStreamLen,
	}
	var eventBus bus.EventBus
	switch cfg.Bus.Type {
	case "stub":
		eventBus = bus.NewStubBus(busCfg)
	default:
		eventBus = bus.NewRedisBus(rdb, busCfg)
	}

	a := &app{
		cfg:        cfg,
		db:         db,
		rdb:        rdb,
		bus:        eventBus,
		events:     postgres.NewEventStore(db, dbTimeout),
		entities:   postgres.NewEntityStore(db, dbTimeout),
		sanctions:  postgres.NewSanctionsStore(db, dbTimeout),
		spikes:     postgres.NewSpikeStore(db, dbTimeout),
		indicators: postgres.NewIndicatorStore(db, dbTimeout),
		tradeFlows: postgres.NewTradeFlowStore(db, dbTimeout),
		forecasts:  postgres.NewForecastStore(db, dbTimeout),
	}
	a.tracker = trending.NewTracker(rdb, a.entities)
	a.registry = a.buildRegistry()

	llmClient := llm.NewHTTPClient(llm.HTTPClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout(),
	})
	a.chat = llmClient
	a.llm = llm.NewAnalyzer(llmClient, llm.NewRedisCache(rdb))

	if cfg.Sanctions.BaseURL != "" {
		a.screener = sanctions.NewScreener(
			sanctions.NewHTTPProvider(cfg.Sanctions.BaseURL, cfg.Sanctions.Timeout()))
	}
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}

// buildRegistry registers every enabled adapter with its configured rate
// limit. Sources absent from the config run with conservative defaults.
func (a *app) buildRegistry() *adapter.Registry {
	reg := adapter.NewRegistry(a.bus)
	conf := func(source string) config.AdapterConf {
		if c, ok := a.cfg.Adapters[source]; ok {
			return c
		}
		return config.AdapterConf{Enabled: true, RPS: 1, Burst: 2}
	}
	register := func(source string, ad adapter.Adapter) {
		c := conf(source)
		if !c.Enabled {
			return
		}
		reg.Register(ad, rate.Limit(c.RPS), c.Burst)
	}

	const timeout = 60 * time.Second
	register(event.SourceGDELT, gdelt.New(conf(event.SourceGDELT).BaseURL, timeout))
	register(event.SourceReliefWeb, reliefweb.New(conf(event.SourceReliefWeb).BaseURL, timeout))
	register(event.SourceFRED, fred.New(
		conf(event.SourceFRED).BaseURL, conf(event.SourceFRED).APIKey(), nil, a.indicators, timeout))
	register(event.SourceUNComtrade, comtrade.New(
		conf(event.SourceUNComtrade).BaseURL, conf(event.SourceUNComtrade).APIKey(), a.tradeFlows, timeout))
	register(event.SourceWorldBank, worldbank.New(conf(event.SourceWorldBank).BaseURL, nil, a.indicators, timeout))
	register(event.SourceGoogleTrends, trends.New(conf(event.SourceGoogleTrends).BaseURL, nil, timeout))
	register(event.SourceSECEdgar, edgar.New(conf(event.SourceSECEdgar).BaseURL, timeout))
	return reg
}

// startPipeline subscribes the three stage handlers on the bus.
func (a *app) startPipeline(ctx context.Context, group string) error {
	ingestor := pipeline.NewIngestor(a.events, a.bus, llm.Tier(a.cfg.LLM.DefaultTier))
	analyzer := pipeline.NewAnalyzer(a.events, a.llm, quant.New(quant.DefaultWeights()),
		hybrid.New(hybrid.DefaultWeights()), a.bus)
	extractor := pipeline.NewExtractor(a.events, a.entities, a.sanctions,
		entity.NewResolver(a.entities), a.screener, a.tracker,
		aggregate.New(aggregate.DefaultProfiles()))
	return pipeline.Register(ctx, a.bus, group, ingestor, analyzer, extractor)
}

func (a *app) graphBuilder() *graph.Builder {
	return graph.NewBuilder(a.entities, a.events)
}

func (a *app) correlationLoader() *correlation.Loader {
	return correlation.NewLoader(a.events, a.entities, a.indicators)
}

func (a *app) forecastClient() *forecast.Client {
	if a.cfg.Forecast.BaseURL == "" {
		return nil
	}
	return forecast.NewClient(a.cfg.Forecast.BaseURL, a.forecasts, a.cfg.Forecast.Timeout())
}
