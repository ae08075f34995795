package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type DB struct {
	URL             string        `env:"DATABASE_URL,required,notEmpty"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
	MigrationsPath  string        `env:"DB_MIGRATIONS_PATH" envDefault:"file://db/migrations"`
}

// Bus selects and configures the event bus transport. ReconnectInterval
// spaces the lazy reconnect attempts sends make while the broker is down.
type Bus struct {
	Driver            string        `env:"BUS_DRIVER" envDefault:"kafka"`
	Brokers           string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	ClientID          string        `env:"KAFKA_CLIENT_ID" envDefault:"sima-events"`
	GroupID           string        `env:"KAFKA_GROUP_ID"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	ConnectTimeout    time.Duration `env:"BUS_CONNECT_TIMEOUT" envDefault:"10s"`
	SendTimeout       time.Duration `env:"BUS_SEND_TIMEOUT" envDefault:"5s"`
	QueueSize         int           `env:"BUS_HANDLER_QUEUE" envDefault:"256"`
	ReconnectInterval time.Duration `env:"BUS_RECONNECT_INTERVAL" envDefault:"5s"`
}

// Publisher is the best-effort policy applied by producers.
type Publisher struct {
	Mode            string        `env:"PUBLISH_MODE" envDefault:"async"`
	BufferSize      int           `env:"PUBLISH_BUFFER" envDefault:"1024"`
	Timeout         time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"3s"`
	WarnInterval    time.Duration `env:"PUBLISH_WARN_INTERVAL" envDefault:"1m"`
	ShutdownTimeout time.Duration `env:"PUBLISH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type HTTP struct {
	Port string `env:"PORT" envDefault:"8080"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

type Config struct {
	DB        DB
	Bus       Bus
	Publisher Publisher
	HTTP      HTTP
	Log       Log
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBus parses only the bus, publisher and log sections, for processes
// that never touch the database.
func LoadBus() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(&cfg.Bus); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Publisher); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}
