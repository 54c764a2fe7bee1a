package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 描述了 NOLA 交换核心在启动阶段需要加载的全部配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Log        LogConfig        `json:"log"`
	Providers  ProvidersConfig  `json:"providers"`
	Cache      CacheConfig      `json:"cache"`
	Chain      ChainConfig      `json:"chain"`
	Tokens     TokensConfig     `json:"tokens"`
	Intents    IntentsConfig    `json:"intents"`
	MarketData MarketDataConfig `json:"market_data"`
	Alerting   AlertingConfig   `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址。MetricsAddress 非空时额外启动独立的指标端口。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// LogConfig 对应 pkg/logger 的配置项。
type LogConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
	MaxSizeMB   int      `json:"max_size_mb"`
	MaxBackups  int      `json:"max_backups"`
	MaxAgeDays  int      `json:"max_age_days"`
}

// ProvidersConfig 描述报价与价格上游，以及它们的优先级顺序。
type ProvidersConfig struct {
	TimeoutMillis int            `json:"timeout_ms"`
	QuoteOrder    []string       `json:"quote_order"`
	PriceOrder    []string       `json:"price_order"`
	OneInch       ProviderConfig `json:"oneinch"`
	ZeroX         ProviderConfig `json:"zerox"`
	CoinGecko     ProviderConfig `json:"coingecko"`
	Dexscreener   ProviderConfig `json:"dexscreener"`
}

// ProviderConfig 是单个上游的连接参数。
type ProviderConfig struct {
	BaseURL       string  `json:"base_url"`
	APIKey        string  `json:"api_key"`
	APIKeyEnv     string  `json:"api_key_env"`
	Platform      string  `json:"platform"`
	Pro           bool    `json:"pro"`
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
}

// CacheConfig 控制报价与价格缓存。
type CacheConfig struct {
	Driver         string      `json:"driver"`
	QuoteTTLMillis int         `json:"quote_ttl_ms"`
	PriceTTLMillis int         `json:"price_ttl_ms"`
	MaxEntries     int         `json:"max_entries"`
	Redis          RedisConfig `json:"redis"`
}

// RedisConfig 同时被缓存与队列使用。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Prefix    string `json:"prefix"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// ChainConfig 包含访问区块链节点与签名所需的信息。
type ChainConfig struct {
	ChainConfig          string `json:"chain_config"`
	DefaultChain         string `json:"default_chain"`
	RPCURL               string `json:"rpc_url"`
	ChainID              int64  `json:"chain_id"`
	NativeToken          string `json:"native_token"`
	USDCToken            string `json:"usdc_token"`
	DefaultSpender       string `json:"default_spender"`
	SignerKey            string `json:"signer_key"`
	SignerKeyEnv         string `json:"signer_key_env"`
	ConfirmTimeoutSecs   int    `json:"confirm_timeout_seconds"`
	DefaultGasEstimate   uint64 `json:"default_gas_estimate"`
	RejectWhenSignerBusy bool   `json:"reject_when_signer_busy"`
}

// TokensConfig 指定代币列表来源。
type TokensConfig struct {
	ListURL  string `json:"list_url"`
	ListFile string `json:"list_file"`
}

// IntentsConfig 描述兑换意图的存储与队列。
type IntentsConfig struct {
	Store         StoreConfig `json:"store"`
	Queue         QueueConfig `json:"queue"`
	MaxQuoteAgeMs int         `json:"max_quote_age_ms"`
}

// StoreConfig 选择意图存储驱动。
type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 选择意图队列驱动。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Size     int            `json:"size"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// MarketDataConfig 指向外部行情快照目录。
type MarketDataConfig struct {
	Dir string `json:"dir"`
}

// AlertingConfig 控制终态失败的告警。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// Load 负责解析指定路径的 JSON 配置文件，并叠加环境变量。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	baseDir := filepath.Dir(path)
	// .env 不存在时忽略。
	_ = godotenv.Load(filepath.Join(baseDir, ".env"))

	cfg.applyEnv()
	cfg.applyDefaults(baseDir)
	return &cfg, nil
}

// applyEnv 让敏感字段可以只通过环境变量提供。
func (c *Config) applyEnv() {
	for _, p := range []*ProviderConfig{&c.Providers.OneInch, &c.Providers.ZeroX, &c.Providers.CoinGecko, &c.Providers.Dexscreener} {
		if strings.TrimSpace(p.APIKey) == "" && p.APIKeyEnv != "" {
			p.APIKey = strings.TrimSpace(os.Getenv(p.APIKeyEnv))
		}
	}
	if strings.TrimSpace(c.Chain.SignerKey) == "" {
		env := c.Chain.SignerKeyEnv
		if env == "" {
			env = "NOLA_SIGNER_KEY"
		}
		c.Chain.SignerKey = strings.TrimSpace(os.Getenv(env))
	}
	if v := os.Getenv("NOLA_SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("NOLA_METRICS_ADDRESS"); v != "" {
		c.Server.MetricsAddress = v
	}
	if v := os.Getenv("NOLA_RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("NOLA_REDIS_ADDRESS"); v != "" {
		c.Cache.Redis.Address = v
		c.Intents.Queue.Redis.Address = v
	}
	if v := os.Getenv("NOLA_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Chain.ChainID = id
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Providers.TimeoutMillis <= 0 {
		c.Providers.TimeoutMillis = 3000
	}
	if len(c.Providers.QuoteOrder) == 0 {
		c.Providers.QuoteOrder = []string{"oneinch", "zerox"}
	}
	if len(c.Providers.PriceOrder) == 0 {
		c.Providers.PriceOrder = []string{"oneinch", "coingecko", "dexscreener"}
	}
	if c.Providers.OneInch.BaseURL == "" {
		c.Providers.OneInch.BaseURL = "https://api.1inch.io/v5.0"
	}
	if c.Providers.ZeroX.BaseURL == "" {
		c.Providers.ZeroX.BaseURL = "https://polygon.api.0x.org"
	}
	if c.Providers.ZeroX.APIKeyEnv == "" && c.Providers.ZeroX.APIKey == "" {
		c.Providers.ZeroX.APIKey = strings.TrimSpace(os.Getenv("NOLA_ZEROX_API_KEY"))
	}
	if c.Providers.CoinGecko.BaseURL == "" {
		if c.Providers.CoinGecko.Pro {
			c.Providers.CoinGecko.BaseURL = "https://pro-api.coingecko.com/api/v3"
		} else {
			c.Providers.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
		}
	}
	if c.Providers.CoinGecko.Platform == "" {
		c.Providers.CoinGecko.Platform = "polygon-pos"
	}
	if c.Providers.Dexscreener.BaseURL == "" {
		c.Providers.Dexscreener.BaseURL = "https://api.dexscreener.com"
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.QuoteTTLMillis <= 0 {
		c.Cache.QuoteTTLMillis = 10_000
	}
	if c.Cache.PriceTTLMillis <= 0 {
		c.Cache.PriceTTLMillis = 30_000
	}
	if c.Cache.MaxEntries < 0 {
		c.Cache.MaxEntries = 0
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "nola:cache:"
	}

	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = 137
	}
	if c.Chain.NativeToken == "" {
		c.Chain.NativeToken = "0x0000000000000000000000000000000000001010"
	}
	if c.Chain.USDCToken == "" {
		c.Chain.USDCToken = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	}
	if c.Chain.DefaultSpender == "" {
		c.Chain.DefaultSpender = "0x1111111254fb6c44bac0bed2854e76f90643097d"
	}
	if c.Chain.ConfirmTimeoutSecs <= 0 {
		c.Chain.ConfirmTimeoutSecs = 180
	}
	if c.Chain.DefaultGasEstimate == 0 {
		c.Chain.DefaultGasEstimate = 300_000
	}
	c.Chain.ChainConfig = resolvePath(baseDir, c.Chain.ChainConfig)

	if c.Tokens.ListURL == "" && c.Tokens.ListFile == "" {
		c.Tokens.ListURL = "https://tokens.coingecko.com/polygon-pos/all.json"
	}
	c.Tokens.ListFile = resolvePath(baseDir, c.Tokens.ListFile)

	if c.Intents.Store.Driver == "" {
		c.Intents.Store.Driver = "memory"
	}
	if c.Intents.Queue.Driver == "" {
		c.Intents.Queue.Driver = "memory"
	}
	if c.Intents.Queue.Size <= 0 {
		c.Intents.Queue.Size = 256
	}
	if c.Intents.MaxQuoteAgeMs <= 0 {
		c.Intents.MaxQuoteAgeMs = 30_000
	}

	if c.MarketData.Dir == "" {
		c.MarketData.Dir = filepath.Join(baseDir, "cached")
	} else {
		c.MarketData.Dir = resolvePath(baseDir, c.MarketData.Dir)
	}
}

func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ProviderTimeout 返回单次上游调用的超时时间。
func (c ProvidersConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// QuoteTTL 返回报价缓存的有效期。
func (c CacheConfig) QuoteTTL() time.Duration {
	return time.Duration(c.QuoteTTLMillis) * time.Millisecond
}

// PriceTTL 返回价格缓存的有效期。
func (c CacheConfig) PriceTTL() time.Duration {
	return time.Duration(c.PriceTTLMillis) * time.Millisecond
}

// ConfirmTimeout 返回等待链上确认的最长时间。
func (c ChainConfig) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSecs) * time.Second
}

// MaxQuoteAge 返回排队意图可接受的最大报价年龄。
func (c IntentsConfig) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeMs) * time.Millisecond
}
