package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Chains    []ChainConfig   `mapstructure:"chains"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	LogFile  string `mapstructure:"log_file"` // 为空时只输出到控制台
}

type DBConfig struct {
	Driver   string `mapstructure:"driver"` // "postgres" or "memory" (sqlite 内存库，仅开发)
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
	// Enabled 为 false 时 session / origin lock 全部走进程内实现
	Enabled bool `mapstructure:"enabled"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type WalletConfig struct {
	KeystorePath   string `mapstructure:"keystore_path"`
	Password       string `mapstructure:"password"`        // 通常通过环境变量 WALLET_PASSWORD 传入
	Mnemonic       string `mapstructure:"mnemonic"`        // 仅限开发环境
	DerivationPath string `mapstructure:"derivation_path"` // 默认 m/44'/60'/0'/0/0
	Accounts       int    `mapstructure:"accounts"`        // 派生账户数量
	InternalOrigin string `mapstructure:"internal_origin"` // 钱包自身 UI 的 origin, 可调用 InternalOnly 方法
	DefaultChainID uint64 `mapstructure:"default_chain_id"`
}

type ChainConfig struct {
	ID     uint64 `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	Symbol string `mapstructure:"symbol"`
	RpcUrl string `mapstructure:"rpc_url"`
}

type RelayConfig struct {
	Mode    string        `mapstructure:"mode"` // "direct" (节点直发) or "http" (中继服务)
	Url     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Topic   string        `mapstructure:"topic"` // 中继回推 tracking id -> hash 的 MQ 主题
}

type CacheConfig struct {
	RpcTTL time.Duration `mapstructure:"rpc_ttl"`
}

type ApprovalConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	// LockTTL origin 锁的过期时间，进程崩溃时避免锁永久残留
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type WatcherConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type RateLimitConfig struct {
	PerMinute float64 `mapstructure:"per_minute"`
	Burst     int     `mapstructure:"burst"`
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.driver", "postgres")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "wallet_user")
	viper.SetDefault("db.password", "wallet_password")
	viper.SetDefault("db.name", "wallet_provider")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")
	viper.SetDefault("redis.enabled", true)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "provider_events")

	viper.SetDefault("wallet.keystore_path", "keyring.json")
	viper.SetDefault("wallet.derivation_path", "m/44'/60'/0'/0")
	viper.SetDefault("wallet.accounts", 1)
	viper.SetDefault("wallet.internal_origin", "wallet://internal")
	viper.SetDefault("wallet.default_chain_id", 1)

	viper.SetDefault("chains", []map[string]interface{}{
		{"id": 1, "name": "Ethereum", "symbol": "ETH", "rpc_url": "https://cloudflare-eth.com"},
		{"id": 56, "name": "BNB Chain", "symbol": "BNB", "rpc_url": "https://bsc-dataseed.binance.org"},
		{"id": 137, "name": "Polygon", "symbol": "POL", "rpc_url": "https://polygon-rpc.com"},
	})

	viper.SetDefault("relay.mode", "direct")
	viper.SetDefault("relay.timeout", 15*time.Second)
	viper.SetDefault("relay.topic", "relay_events")

	viper.SetDefault("cache.rpc_ttl", 3*time.Second)
	viper.SetDefault("approval.queue_size", 64)
	viper.SetDefault("approval.lock_ttl", 10*time.Minute)
	viper.SetDefault("watcher.schedule", "@every 5s")

	viper.SetDefault("rate_limit.per_minute", 600)
	viper.SetDefault("rate_limit.burst", 50)
}
