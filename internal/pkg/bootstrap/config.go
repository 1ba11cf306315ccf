// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/config.yaml"

// Config 是整个服务的配置树，来源于 YAML 文件，部分字段可以被环境变量覆盖。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Lock     LockConfig     `yaml:"lock"`
	Bank     BankConfig     `yaml:"bank"`
	Infra    InfraConfig    `yaml:"infra"`
}

type AppConfig struct {
	ServiceName string `yaml:"serviceName"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	// RegisterToNacos 为 false 时跳过注册，本地开发时常用
	RegisterToNacos bool `yaml:"registerToNacos"`
}

type CheckoutConfig struct {
	PaymentTimeout      time.Duration `yaml:"paymentTimeout"`
	CompensationTimeout time.Duration `yaml:"compensationTimeout"`
	// SuccessPolicy 是判定网关结果码为成功的 CEL 表达式
	SuccessPolicy  string        `yaml:"successPolicy"`
	IdempotencyTTL time.Duration `yaml:"idempotencyTTL"`
	// ReleaseClaimTTL 是库存归还幂等 key 的保留时间，0 表示永久保留。
	// 必须长于归还消息可能被重放的窗口 (Kafka 保留期)
	ReleaseClaimTTL time.Duration `yaml:"releaseClaimTTL"`
}

// LockConfig 决定库存记录的互斥方式: db 使用行锁，其余为外部锁 + 普通读写。
type LockConfig struct {
	Backend string        `yaml:"backend"` // db | local | redis | zookeeper
	TTL     time.Duration `yaml:"ttl"`
	Wait    time.Duration `yaml:"wait"`
}

type BankConfig struct {
	URL         string        `yaml:"url"`
	ServiceName string        `yaml:"serviceName"` // 非空时通过 Nacos 发现
	Latency     time.Duration `yaml:"latency"`     // 仅 bank-simulator 使用
	ResultCode  string        `yaml:"resultCode"`  // 仅 bank-simulator 使用
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type MySQLConfig struct {
	DSN      string `yaml:"dsn"`
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	EventsTopic   string   `yaml:"eventsTopic"`
	ReleaseTopic  string   `yaml:"releaseTopic"`
	DLTTopic      string   `yaml:"dltTopic"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
	// SampleRatio 是根 span 的采样比例，取值 [0, 1]，下游跟随上游的采样决定
	SampleRatio float64 `yaml:"sampleRatio"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

// DefaultConfig 返回所有字段均有合理默认值的配置。
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			ServiceName: "checkout-service",
			Port:        8080,
			LogLevel:    "info",
		},
		Checkout: CheckoutConfig{
			PaymentTimeout:      10 * time.Second,
			CompensationTimeout: 5 * time.Second,
			SuccessPolicy:       `resultCode == "200"`,
			IdempotencyTTL:      24 * time.Hour,
		},
		Lock: LockConfig{
			Backend: "db",
			TTL:     10 * time.Second,
			Wait:    5 * time.Second,
		},
		Bank: BankConfig{
			URL:        "http://localhost:8090",
			Latency:    5 * time.Second,
			ResultCode: "200",
		},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				Addr:     "localhost:3306",
				User:     "root",
				Database: "stockpay",
			},
			Redis: RedisConfig{Addrs: []string{"localhost:6379"}},
			Kafka: KafkaConfig{
				Brokers:       []string{"localhost:9092"},
				EventsTopic:   "checkout-events",
				ReleaseTopic:  "stock-release-requests",
				DLTTopic:      "stock-release-requests-dlt",
				ConsumerGroup: "checkout-service",
			},
			Jaeger: JaegerConfig{
				Endpoint:    "http://localhost:14268/api/traces",
				SampleRatio: 1,
			},
			Nacos: NacosConfig{
				ServerAddrs: "localhost:8848",
				Group:       "DEFAULT_GROUP",
			},
			Zookeeper: ZookeeperConfig{
				Servers:        []string{"localhost:2181"},
				SessionTimeout: 10 * time.Second,
			},
		},
	}
}

// LoadConfig 读取 YAML 配置文件并叠加环境变量。
// path 为空时使用 CONFIG_PATH，再退回到 configs/config.yaml；文件不存在时只使用默认值。
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = GetEnv("CONFIG_PATH", defaultConfigPath)
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("APP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid APP_PORT %q: %w", v, err)
		}
		c.App.Port = port
	}
	if v, ok := os.LookupEnv("PAYMENT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PAYMENT_TIMEOUT %q: %w", v, err)
		}
		c.Checkout.PaymentTimeout = d
	}
	c.App.LogLevel = GetEnv("LOG_LEVEL", c.App.LogLevel)
	c.Lock.Backend = GetEnv("LOCK_BACKEND", c.Lock.Backend)
	c.Bank.URL = GetEnv("BANK_URL", c.Bank.URL)
	c.Infra.MySQL.DSN = GetEnv("MYSQL_DSN", c.Infra.MySQL.DSN)
	c.Infra.Jaeger.Endpoint = GetEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	if v, ok := os.LookupEnv("JAEGER_SAMPLE_RATIO"); ok {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid JAEGER_SAMPLE_RATIO %q: %w", v, err)
		}
		c.Infra.Jaeger.SampleRatio = ratio
	}
	c.Infra.Nacos.ServerAddrs = GetEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = GetEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = GetEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		c.Infra.Redis.Addrs = splitList(v)
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Infra.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("ZOOKEEPER_SERVERS"); ok {
		c.Infra.Zookeeper.Servers = splitList(v)
	}
	return nil
}

// Validate 检查会导致运行期错误的配置组合。
func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return fmt.Errorf("app.port must be positive, got %d", c.App.Port)
	}
	if c.Checkout.PaymentTimeout <= 0 {
		return fmt.Errorf("checkout.paymentTimeout must be positive, got %s", c.Checkout.PaymentTimeout)
	}
	// 为 0 时补偿 ctx 一创建就已超时，归还库存必然失败
	if c.Checkout.CompensationTimeout <= 0 {
		return fmt.Errorf("checkout.compensationTimeout must be positive, got %s", c.Checkout.CompensationTimeout)
	}
	if c.Checkout.ReleaseClaimTTL < 0 {
		return fmt.Errorf("checkout.releaseClaimTTL must not be negative, got %s", c.Checkout.ReleaseClaimTTL)
	}
	if r := c.Infra.Jaeger.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("infra.jaeger.sampleRatio must be within [0, 1], got %v", r)
	}
	switch c.Lock.Backend {
	case "db", "local", "redis", "zookeeper":
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	return nil
}

// GetEnv 读取环境变量，未设置时返回 fallback。
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
