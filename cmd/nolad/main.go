package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"NOLA-Exchange/internal/aggregator"
	"NOLA-Exchange/internal/api"
	"NOLA-Exchange/internal/cache"
	"NOLA-Exchange/internal/config"
	"NOLA-Exchange/internal/intent"
	"NOLA-Exchange/internal/marketdata"
	"NOLA-Exchange/internal/observability/alerting"
	"NOLA-Exchange/internal/observability/metrics"
	"NOLA-Exchange/internal/swap"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/upstream"
	"NOLA-Exchange/internal/upstream/coingecko"
	"NOLA-Exchange/internal/upstream/dexscreener"
	"NOLA-Exchange/internal/upstream/oneinch"
	"NOLA-Exchange/internal/upstream/zerox"
	"NOLA-Exchange/internal/web3/ethereum"
	"NOLA-Exchange/internal/web3/provider"
	"NOLA-Exchange/pkg/logger"
)

// main 是 NOLA 交换守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("nolad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("NOLA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "nola.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.AuditPath != "",
			Path:       cfg.Log.AuditPath,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		},
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	appLog := logger.Named("nolad")

	registry, err := token.NewRegistry(
		token.Source{URL: cfg.Tokens.ListURL, File: cfg.Tokens.ListFile},
		token.Token{Address: cfg.Chain.NativeToken, Symbol: "MATIC", Name: "Polygon", Decimals: token.DefaultDecimals},
	)
	if err != nil {
		return err
	}
	if err := registry.Load(ctx); err != nil {
		// 列表不可用时仍可服务，精度回退为 18 位。
		appLog.Warn("加载代币列表失败", slog.Any("error", err))
	}

	chains, err := provider.NewRegistry(ctx, cfg.Chain)
	if err != nil {
		return err
	}
	defer chains.Close()
	chainClient, err := chains.DefaultClient()
	if err != nil {
		return err
	}

	var signer *ethereum.Signer
	if cfg.Chain.SignerKey != "" {
		signer, err = ethereum.NewSigner(ctx, chainClient, cfg.Chain.SignerKey, cfg.Chain.ChainID)
		if err != nil {
			return err
		}
		appLog.Info("签名者已就绪", slog.String("account", signer.Account()))
	}

	quotes, prices, err := buildAggregators(cfg, registry, signer)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Tokens: registry,
		Prices: prices,
		Quotes: quotes,
		Market: marketdata.NewReader(cfg.MarketData.Dir),
		Chain:  chainClient,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if signer != nil {
		svc, processor, err := buildIntentPipeline(groupCtx, cfg, signer, quotes)
		if err != nil {
			return err
		}
		defer svc.Close()
		deps.Intents = svc
		group.Go(func() error { return processor.Start(groupCtx) })
	} else {
		appLog.Warn("未配置签名私钥，兑换执行接口不可用")
	}

	if cfg.Server.MetricsAddress != "" {
		group.Go(func() error { return metrics.StartServer(groupCtx, cfg.Server.MetricsAddress) })
	}

	server := api.NewServer(cfg.Server.Address, deps)
	group.Go(func() error {
		appLog.Info("API 服务启动", slog.String("address", cfg.Server.Address))
		return server.Start(groupCtx)
	})

	return group.Wait()
}

func buildAggregators(cfg *config.Config, registry *token.Registry, signer *ethereum.Signer) (*aggregator.QuoteAggregator, *aggregator.PriceAggregator, error) {
	pc := cfg.Providers
	guard := upstream.NewGuard(pc.ProviderTimeout())

	fetcher := func(name string, p config.ProviderConfig, header string) *upstream.HTTPFetcher {
		opts := []upstream.FetcherOption{}
		if p.RatePerSecond > 0 {
			opts = append(opts, upstream.WithRateLimit(p.RatePerSecond, p.Burst))
		}
		if header != "" && p.APIKey != "" {
			opts = append(opts, upstream.WithHeader(header, p.APIKey))
		}
		return upstream.NewHTTPFetcher(name, guard, opts...)
	}

	taker := ""
	if signer != nil {
		taker = signer.Account()
	}
	oneInch := oneinch.NewClient(oneinch.Config{
		BaseURL:     pc.OneInch.BaseURL,
		ChainID:     cfg.Chain.ChainID,
		USDC:        cfg.Chain.USDCToken,
		FromAddress: taker,
	}, fetcher(oneinch.Name, pc.OneInch, ""), registry.DecimalsOf)
	zeroX := zerox.NewClient(pc.ZeroX.BaseURL, taker, fetcher(zerox.Name, pc.ZeroX, zerox.APIKeyHeader))
	gecko := coingecko.NewClient(pc.CoinGecko.BaseURL, pc.CoinGecko.Platform,
		fetcher(coingecko.Name, pc.CoinGecko, coingecko.KeyHeader(pc.CoinGecko.Pro)))
	dex := dexscreener.NewClient(pc.Dexscreener.BaseURL, fetcher(dexscreener.Name, pc.Dexscreener, ""))

	quoteProviders, err := aggregator.Select[upstream.QuoteProvider](pc.QuoteOrder, oneInch, zeroX)
	if err != nil {
		return nil, nil, err
	}
	priceProviders, err := aggregator.Select[upstream.PriceProvider](pc.PriceOrder, oneInch, gecko, dex)
	if err != nil {
		return nil, nil, err
	}

	quoteCache, priceCache, err := buildCaches(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	return aggregator.NewQuoteAggregator(quoteCache, quoteProviders...),
		aggregator.NewPriceAggregator(priceCache, priceProviders...),
		nil
}

func buildCaches(cfg config.CacheConfig) (cache.Store[upstream.Quote], cache.Store[upstream.PricePoint], error) {
	switch cfg.Driver {
	case "memory", "":
		quotes, err := cache.NewMemory[upstream.Quote](cfg.QuoteTTL(), cache.WithMaxEntries(cfg.MaxEntries))
		if err != nil {
			return nil, nil, err
		}
		prices, err := cache.NewMemory[upstream.PricePoint](cfg.PriceTTL(), cache.WithMaxEntries(cfg.MaxEntries))
		if err != nil {
			return nil, nil, err
		}
		return quotes, prices, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewRedis[upstream.Quote](client, cfg.Redis.Prefix+"quote:", cfg.QuoteTTL()),
			cache.NewRedis[upstream.PricePoint](client, cfg.Redis.Prefix+"price:", cfg.PriceTTL()),
			nil
	default:
		return nil, nil, fmt.Errorf("不支持的缓存驱动: %s", cfg.Driver)
	}
}

func buildIntentPipeline(ctx context.Context, cfg *config.Config, signer *ethereum.Signer, quoter intent.Quoter) (*intent.Service, *intent.Processor, error) {
	store, err := buildIntentStore(cfg.Intents.Store)
	if err != nil {
		return nil, nil, err
	}
	queue, err := buildIntentQueue(ctx, cfg.Intents.Queue)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	sequencer := swap.NewSequencer(signer, swap.Config{
		NativeToken:        cfg.Chain.NativeToken,
		DefaultSpender:     cfg.Chain.DefaultSpender,
		DefaultGasEstimate: cfg.Chain.DefaultGasEstimate,
		ConfirmTimeout:     cfg.Chain.ConfirmTimeout(),
		RejectWhenBusy:     cfg.Chain.RejectWhenSignerBusy,
	},
		swap.WithObserver(swap.AuditObserver{}),
		swap.WithObserver(intent.PersistObserver(store)),
	)

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if webhook := alerting.NewWebhookNotifier(cfg.Alerting.WebhookURL); webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	svc := intent.NewService(store, queue, quoter)
	processor := intent.NewProcessor(sequencer, store, queue,
		intent.WithMaxQuoteAge(cfg.Intents.MaxQuoteAge()),
		intent.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)
	return svc, processor, nil
}

func buildIntentStore(cfg config.StoreConfig) (intent.Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return intent.NewMemoryStore(), nil
	case "mysql":
		return intent.NewMySQLStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的意图存储驱动: %s", cfg.Driver)
	}
}

func buildIntentQueue(ctx context.Context, cfg config.QueueConfig) (intent.Queue, error) {
	switch cfg.Driver {
	case "memory", "":
		return intent.NewMemoryQueue(cfg.Size), nil
	case "redis":
		return intent.NewRedisQueue(ctx, intent.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: secondsOf(cfg.Redis.BlockWait),
		})
	case "rabbitmq":
		return intent.NewRabbitMQQueue(intent.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("不支持的意图队列驱动: %s", cfg.Driver)
	}
}

func secondsOf(n int) time.Duration {
	return time.Duration(n) * time.Second
}
