package config

import (
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Env             string        `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	HTTP            HTTP          `yaml:"http"`
	GRPC            GRPC          `yaml:"grpc"`
	Mongo           Mongo         `yaml:"mongo"`
	Redis           Redis         `yaml:"redis"`
	Postgres        Postgres      `yaml:"postgres"`
	Kafka           Kafka         `yaml:"kafka"`
	Stores          Stores        `yaml:"stores"`
	Catalog         Catalog       `yaml:"catalog"`
	Loyalty         Loyalty       `yaml:"loyalty"`
	Auth            Auth          `yaml:"auth"`
	Tracing         Tracing       `yaml:"tracing"`
	MutationRetries int           `yaml:"mutation_retries" env:"MUTATION_RETRIES" env-default:"5"`
}

type HTTP struct {
	Port           string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"30s"`
}

type GRPC struct {
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50052"`
}

type Mongo struct {
	URI    string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	DBName string `yaml:"db_name" env:"MONGO_DB_NAME" env-default:"commerce"`
}

// Redis is optional; an empty Addr disables both caches.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
}

type Postgres struct {
	URL            string `yaml:"url" env:"POSTGRES_URL"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"internal/repository/migrations"`
}

// Kafka is optional; no brokers means no order consumer.
type Kafka struct {
	Brokers    []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	OrderTopic string   `yaml:"order_topic" env:"KAFKA_ORDER_TOPIC" env-default:"orders-completed"`
	GroupID    string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"commerce-loyalty"`
}

type Stores struct {
	Cart    string `yaml:"cart" env:"CART_STORE" env-default:"mongo"`
	Loyalty string `yaml:"loyalty" env:"LOYALTY_STORE" env-default:"mongo"`
}

type Catalog struct {
	Store              string        `yaml:"store" env:"CATALOG_STORE" env-default:"mongo"`
	CacheTTL           time.Duration `yaml:"cache_ttl" env:"CATALOG_CACHE_TTL" env-default:"1m"`
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures" env:"BREAKER_MAX_FAILURES" env-default:"5"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout" env:"BREAKER_OPEN_TIMEOUT" env-default:"30s"`
}

type Loyalty struct {
	PointsPerUnit string `yaml:"points_per_unit" env:"POINTS_PER_UNIT" env-default:"1"`
}

// Auth is optional; an empty secret leaves the loyalty routes open.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type Tracing struct {
	Endpoint string `yaml:"endpoint" env:"OTEL_ENDPOINT"`
}

// Load reads .env when present, then the YAML file named by CONFIG_PATH when
// set, then the environment. Environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read config from environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !slices.Contains([]string{StoreMongo, StoreMemory}, c.Stores.Cart) {
		return errors.Newf("CART_STORE must be mongo or memory, got %q", c.Stores.Cart)
	}
	if !slices.Contains([]string{StoreMongo, StorePostgres, StoreMemory}, c.Stores.Loyalty) {
		return errors.Newf("LOYALTY_STORE must be mongo, postgres or memory, got %q", c.Stores.Loyalty)
	}
	if !slices.Contains([]string{StoreMongo, StoreMemory}, c.Catalog.Store) {
		return errors.Newf("CATALOG_STORE must be mongo or memory, got %q", c.Catalog.Store)
	}
	if c.Stores.Loyalty == StorePostgres && c.Postgres.URL == "" {
		return errors.New("POSTGRES_URL is required when LOYALTY_STORE is postgres")
	}
	if c.MutationRetries <= 0 {
		return errors.Newf("MUTATION_RETRIES must be positive, got %d", c.MutationRetries)
	}
	return nil
}

// UsesMongo reports whether any store or the catalog needs a Mongo connection.
func (c *Config) UsesMongo() bool {
	return c.Catalog.Store == StoreMongo || c.Stores.Cart == StoreMongo || c.Stores.Loyalty == StoreMongo
}
