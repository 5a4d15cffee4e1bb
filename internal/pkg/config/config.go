// internal/pkg/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "configs/fulfillment.yaml"

// Config 是整个履约服务的配置根节点
type Config struct {
	App    AppConfig    `yaml:"app"`
	Infra  InfraConfig  `yaml:"infra"`
	Ledger LedgerConfig `yaml:"ledger"`
	Store  StoreConfig  `yaml:"store"`
	Order  OrderConfig  `yaml:"order"`
}

type AppConfig struct {
	ServiceName       string        `yaml:"serviceName"`
	Port              int           `yaml:"port"`
	LogLevel          string        `yaml:"logLevel"`
	ProcessingTimeout time.Duration `yaml:"processingTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	GroupID string      `yaml:"groupId"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics 列出了服务使用的所有主题
type KafkaTopics struct {
	Events       string `yaml:"events"`
	Workflow     string `yaml:"workflow"`
	StepRequests string `yaml:"stepRequests"`
	StepResults  string `yaml:"stepResults"`
	DeadLetter   string `yaml:"deadLetter"`
}

type RedisConfig struct {
	Addrs []string `yaml:"addrs"`
}

type MySQLConfig struct {
	// DSN 非空时直接使用，否则由下面的字段拼装
	DSN      string `yaml:"dsn"`
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
	LockTimeout    time.Duration `yaml:"lockTimeout"`
}

// LedgerConfig 选择库存账本的后端: redis | mysql | memory
type LedgerConfig struct {
	Backend string `yaml:"backend"`
	// CallTimeout 限制单次账本调用（扣减或补偿）的耗时
	CallTimeout time.Duration `yaml:"callTimeout"`
}

// StoreConfig 选择订单记录、幂等令牌和预占日志的后端: mysql | memory
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

type OrderConfig struct {
	// AdmissionRule 是一个 CEL 表达式，可用变量: amount, items, userId
	AdmissionRule string `yaml:"admissionRule"`
}

// Default 返回一份所有字段都有值的默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			ServiceName:       "fulfillment-service",
			Port:              8081,
			LogLevel:          "info",
			ProcessingTimeout: 30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "fulfillment-step-consumer-group",
				Topics: KafkaTopics{
					Events:       "fulfillment-events",
					Workflow:     "order-workflow-topic",
					StepRequests: "fulfillment-step-requests",
					StepResults:  "fulfillment-step-results",
					DeadLetter:   "fulfillment-step-requests.DLT",
				},
			},
			Redis: RedisConfig{Addrs: []string{"localhost:6379"}},
			MySQL: MySQLConfig{
				Addr:     "localhost:3306",
				User:     "root",
				Database: "fulfillment",
			},
			Nacos: NacosConfig{
				ServerAddrs: "localhost:8848",
				Group:       "DEFAULT_GROUP",
			},
			Zookeeper: ZookeeperConfig{
				SessionTimeout: 5 * time.Second,
				LockTimeout:    30 * time.Second,
			},
		},
		Ledger: LedgerConfig{
			Backend:     "redis",
			CallTimeout: 5 * time.Second,
		},
		Store: StoreConfig{Backend: "mysql"},
		Order: OrderConfig{
			AdmissionRule: "size(items) <= 100",
		},
	}
}

// Load 读取 YAML 配置文件并叠加环境变量。
// 文件不存在时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = getEnv("CONFIG_FILE", defaultConfigFile)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "read config file %s", path)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.App.ServiceName = getEnv("SERVICE_NAME", cfg.App.ServiceName)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	if port, err := strconv.Atoi(getEnv("PORT", "")); err == nil {
		cfg.App.Port = port
	}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getEnv("REDIS_ADDRS", ""); v != "" {
		cfg.Infra.Redis.Addrs = strings.Split(v, ",")
	}
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	if v := getEnv("ZOOKEEPER_SERVERS", ""); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	cfg.Ledger.Backend = getEnv("LEDGER_BACKEND", cfg.Ledger.Backend)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
}

// Validate 检查后端选择是否合法
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case "redis", "mysql", "memory":
	default:
		return errors.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	switch c.Store.Backend {
	case "mysql", "memory":
	default:
		return errors.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.App.Port <= 0 {
		return errors.Errorf("invalid port %d", c.App.Port)
	}
	return nil
}

// MySQLDSN 返回 GORM 使用的 DSN
func (c *MySQLConfig) MySQLDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = c.Addr
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

// getEnv 从环境变量中读取配置
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
