package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/go-grocery/pkg/utils"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	FeedStoreRedis  = "redis"
)

type Config struct {
	Env           string        `yaml:"env" env:"ENV" env-default:"local"`
	InstanceID    string        `yaml:"instance_id" env:"INSTANCE_ID" env-default:"storefront-1"`
	Log           Log           `yaml:"log"`
	HTTP          HTTP          `yaml:"http"`
	Auth          Auth          `yaml:"auth"`
	Storage       Storage       `yaml:"storage"`
	Postgres      PG            `yaml:"postgres"`
	Redis         Redis         `yaml:"redis"`
	Notifications Notifications `yaml:"notifications"`
	Kafka         Kafka         `yaml:"kafka"`
	Outbox        Outbox        `yaml:"outbox"`
	Payment       Payment       `yaml:"payment"`
	Delivery      Delivery      `yaml:"delivery"`
	Telemetry     Telemetry     `yaml:"telemetry"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
	Limiter Limiter       `yaml:"limiter"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" env:"ACCESS_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env-default:"15m"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
}

type PG struct {
	URL            string        `yaml:"url" env:"DB_URL"`
	MigrationsPath string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	MaxConns       int32         `yaml:"max_conns" env-default:"10"`
	MinConns       int32         `yaml:"min_conns" env-default:"2"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env-default:"5s"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Notifications struct {
	Store     string `yaml:"store" env:"NOTIFICATION_STORE" env-default:"memory"`
	FeedLimit int64  `yaml:"feed_limit" env-default:"200"`
}

type Kafka struct {
	Enabled       bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers       []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	RealtimeTopic string   `yaml:"realtime_topic" env-default:"realtime_push"`
	RealtimeGroup string   `yaml:"realtime_group" env-default:"storefront-realtime"`
	OrderTopic    string   `yaml:"order_topic" env-default:"order_events"`
	PaymentTopic  string   `yaml:"payment_topic" env-default:"payment_events"`
	StockTopic    string   `yaml:"stock_topic" env-default:"inventory_events"`
}

type Outbox struct {
	BatchSize int           `yaml:"batch_size" env-default:"50"`
	Interval  time.Duration `yaml:"interval" env-default:"500ms"`
}

type Payment struct {
	Latency     time.Duration `yaml:"latency" env-default:"200ms"`
	Timeout     time.Duration `yaml:"timeout" env-default:"3s"`
	FailureRate float64       `yaml:"failure_rate" env:"PAYMENT_FAILURE_RATE" env-default:"0"`
}

type Delivery struct {
	EstimatedWindow time.Duration `yaml:"estimated_window" env-default:"45m"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled" env:"TELEMETRY_ENABLED" env-default:"false"`
	Endpoint string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
	Service  string `yaml:"service" env-default:"storefront"`
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
