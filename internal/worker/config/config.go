package config

import (
	"fmt"
	"smart-board/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config 定义整个配置的结构
type Config struct {
	Log                LogConfig      `mapstructure:"log"`
	Kafka              KafkaConfig    `mapstructure:"kafka"`
	Redis              RedisConfig    `mapstructure:"redis"`
	Postgres           PostgresConfig `mapstructure:"postgres"`
	Monitor            MonitorConfig  `mapstructure:"monitor"`
	Market             MarketConfig   `mapstructure:"market"`
	Tracker            TrackerConfig  `mapstructure:"tracker"`
	Ingest             IngestConfig   `mapstructure:"ingest"`
	Cache              CacheConfig    `mapstructure:"cache"`
	Refresh            RefreshConfig  `mapstructure:"refresh"`
	API                APIConfig      `mapstructure:"api"`
	SolanaClientRawUrl string         `mapstructure:"solana_client_rawurl"`
}

// KafkaConfig Kafka 配置（ingest feed 推送事件来源）
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	TopicIngest string `mapstructure:"topic_ingest"`
	GroupID     string `mapstructure:"group_id"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig Log 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MonitorConfig struct {
	Enable         bool   `mapstructure:"enable"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

// MarketConfig 行情/代币元数据服务配置
type MarketConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	RateLimit   int    `mapstructure:"rate_limit"`  // 每分钟请求数
	Timeout     int    `mapstructure:"timeout"`     // 秒
	BatchSize   int    `mapstructure:"batch_size"`  // 单次批量查询 mint 数
	Concurrency int    `mapstructure:"concurrency"` // 元数据查询并发数
}

// TrackerConfig 钱包追踪与采集配置
type TrackerConfig struct {
	Wallets            []string `mapstructure:"wallets"` // 静态兜底名单，DB registry 可补充
	Source             string   `mapstructure:"source"`  // poll / push
	WalletConcurrency  int      `mapstructure:"wallet_concurrency"`
	SignatureLimit     int      `mapstructure:"signature_limit"`   // 每钱包签名列表上限 N
	TransactionLimit   int      `mapstructure:"transaction_limit"` // 每钱包交易详情上限 M，M <= N
	RecentBuyWindowMin int      `mapstructure:"recent_buy_window_minutes"`
	LiquidityFloor     float64  `mapstructure:"liquidity_floor"` // USD
	VolumeFloor        float64  `mapstructure:"volume_floor"`    // USD
}

// IngestConfig 推送事件存储配置
type IngestConfig struct {
	MaxEvents  int `mapstructure:"max_events"`
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

// CacheConfig 多级快照缓存配置
type CacheConfig struct {
	RedisTTLMinutes int     `mapstructure:"redis_ttl_minutes"`
	FreshSeconds    int     `mapstructure:"fresh_seconds"` // 超龄视为 stale，触发后台重建
	DiskPath        string  `mapstructure:"disk_path"`
	MinPrevRows     int     `mapstructure:"min_prev_rows"`  // collapse guard 生效的最小旧行数
	MinRowFloor     int     `mapstructure:"min_row_floor"`  // 新快照最低保留行数
	CollapseRatio   float64 `mapstructure:"collapse_ratio"` // 新旧行数最低比例
}

// RefreshConfig 刷新调度配置
type RefreshConfig struct {
	SmartWalletsIntervalMin int `mapstructure:"smart_wallets_interval_minutes"`
	TopTokensIntervalMin    int `mapstructure:"top_tokens_interval_minutes"`
	LockTTLSeconds          int `mapstructure:"lock_ttl_seconds"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

func InitConfig() Config {
	return InitConfigFrom("./config/")
}

// InitConfigFrom 从指定目录加载配置，测试可指向临时目录
func InitConfigFrom(dir string) Config {
	var config Config

	v := viper.New()
	v.SetConfigName("config.worker")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	err := v.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	if err := mapstructure.Decode(v.AllSettings(), &config); err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	applyDefaults(&config)
	return config
}

// applyDefaults 填充未配置项的默认值
func applyDefaults(c *Config) {
	if c.Tracker.Source == "" {
		c.Tracker.Source = "poll"
	}
	if c.Tracker.WalletConcurrency <= 0 {
		c.Tracker.WalletConcurrency = 8
	}
	if c.Tracker.SignatureLimit <= 0 {
		c.Tracker.SignatureLimit = 50
	}
	if c.Tracker.TransactionLimit <= 0 || c.Tracker.TransactionLimit > c.Tracker.SignatureLimit {
		c.Tracker.TransactionLimit = c.Tracker.SignatureLimit
	}
	if c.Tracker.RecentBuyWindowMin <= 0 {
		c.Tracker.RecentBuyWindowMin = 24 * 60
	}
	if c.Market.BatchSize <= 0 {
		c.Market.BatchSize = 30
	}
	if c.Market.Concurrency <= 0 {
		c.Market.Concurrency = 4
	}
	if c.Ingest.MaxEvents <= 0 {
		c.Ingest.MaxEvents = 5000
	}
	if c.Ingest.TTLMinutes <= 0 {
		c.Ingest.TTLMinutes = 24 * 60
	}
	if c.Cache.RedisTTLMinutes <= 0 {
		c.Cache.RedisTTLMinutes = 120
	}
	if c.Cache.FreshSeconds <= 0 {
		c.Cache.FreshSeconds = 300
	}
	if c.Cache.DiskPath == "" {
		c.Cache.DiskPath = "data"
	}
	if c.Cache.MinPrevRows <= 0 {
		c.Cache.MinPrevRows = 20
	}
	if c.Cache.MinRowFloor <= 0 {
		c.Cache.MinRowFloor = 8
	}
	if c.Cache.CollapseRatio <= 0 {
		c.Cache.CollapseRatio = 0.45
	}
	if c.Refresh.SmartWalletsIntervalMin <= 0 {
		c.Refresh.SmartWalletsIntervalMin = 10
	}
	if c.Refresh.TopTokensIntervalMin <= 0 {
		c.Refresh.TopTokensIntervalMin = 5
	}
	if c.Refresh.LockTTLSeconds <= 0 {
		c.Refresh.LockTTLSeconds = 120
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

func WatchConfig(config *Config) {
	viper.SetConfigName("config.worker")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config/")
	if err := viper.ReadInConfig(); err != nil {
		return
	}
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := InitConfig()
		*config = newConfig
		logger.SetLogLevel(config.Log.Level)
	})
}
