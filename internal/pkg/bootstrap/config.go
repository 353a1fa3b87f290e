// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是库存服务的完整配置
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	Name        string        `yaml:"name"`
	Port        int           `yaml:"port"`
	StoreDriver string        `yaml:"store_driver"` // mysql 或 memory
	LockTimeout time.Duration `yaml:"lock_timeout"`
	LogLevel    string        `yaml:"log_level"`
	// IdempotencyTTL 是 RequestID 结果在 Redis 中的保留时间
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	// IdempotencyClaimTTL 是处理中占位的保留时间，0 表示按锁等待超时推算
	IdempotencyClaimTTL time.Duration `yaml:"idempotency_claim_ttl"`
}

// minClaimTTL 是推算出的占位保留时间下限
const minClaimTTL = 10 * time.Second

// ClaimTTL 返回处理中占位的保留时间。
// 未显式配置时取锁等待超时的 4 倍，且不低于 minClaimTTL。
func (c AppConfig) ClaimTTL() time.Duration {
	if c.IdempotencyClaimTTL > 0 {
		return c.IdempotencyClaimTTL
	}
	if d := 4 * c.LockTimeout; d > minClaimTTL {
		return d
	}
	return minClaimTTL
}

type InfraConfig struct {
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Jaeger JaegerConfig `yaml:"jaeger"`
	Nacos  NacosConfig  `yaml:"nacos"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addrs     string `yaml:"addrs"`
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
}

var currentConfig atomic.Pointer[Config]

// DefaultConfig 返回本地开发用的默认配置: 内存存储，不连接任何外部组件
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:           "inventory-service",
			Port:           8082,
			StoreDriver:    "memory",
			LockTimeout:    2 * time.Second,
			LogLevel:       "info",
			IdempotencyTTL: 24 * time.Hour,
		},
		Infra: InfraConfig{
			Kafka: KafkaConfig{Topic: "inventory-transfers"},
			Nacos: NacosConfig{Addrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
	}
}

// LoadConfig 读取 yaml 配置文件并应用环境变量覆盖。
// path 为空或文件不存在时使用默认配置。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	currentConfig.Store(cfg)
	return cfg, nil
}

// GetCurrentConfig 返回最近一次加载的配置
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

// Validate 检查配置是否自洽
func (c *Config) Validate() error {
	switch c.App.StoreDriver {
	case "memory":
	case "mysql":
		if c.Infra.MySQL.DSN == "" {
			return fmt.Errorf("store_driver mysql requires infra.mysql.dsn")
		}
	default:
		return fmt.Errorf("unknown store_driver %q", c.App.StoreDriver)
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.App.Port)
	}
	if c.App.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.App.StoreDriver = getEnv("STORE_DRIVER", cfg.App.StoreDriver)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Infra.Kafka.Topic)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Nacos.Addrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.Addrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if port := getEnv("PORT", ""); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.App.Port = p
	}
	if timeout := getEnv("LOCK_TIMEOUT", ""); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid LOCK_TIMEOUT %q: %w", timeout, err)
		}
		cfg.App.LockTimeout = d
	}
	if enabled := getEnv("NACOS_ENABLED", ""); enabled != "" {
		cfg.Infra.Nacos.Enabled = enabled == "true"
	}
	return nil
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
