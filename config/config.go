package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cwrk-planet/collab-service/internal/pg"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix: COLLAB_HTTP_ADDR, COLLAB_POSTGRES_DSN, COLLAB_WS_PING_INTERVAL ...
const envPrefix = "COLLAB"

type HTTP struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout" split_words:"true"`
	WriteTimeout time.Duration `yaml:"writeTimeout" split_words:"true"`
	IdleTimeout  time.Duration `yaml:"idleTimeout" split_words:"true"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`     // dev|stage|prod
	Service   string `yaml:"service"` // collab-service
	Version   string `yaml:"version"` // v0.1.0
	Backend   string `yaml:"backend"` // std|zap
	Level     string `yaml:"level"`   // debug|info|warn|error
	AddSource bool   `yaml:"addSource" split_words:"true"`
	Debug     bool   `yaml:"debug"`
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns" split_words:"true"`
	MinConns          int32         `yaml:"minConns" split_words:"true"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime" split_words:"true"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime" split_words:"true"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod" split_words:"true"`
	ApplicationName   string        `yaml:"applicationName" split_words:"true"`
}

func (p Postgres) ToPGConfig() pg.Config {
	return pg.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
	}
}

type WS struct {
	PingInterval   time.Duration `yaml:"pingInterval" split_words:"true"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" split_words:"true"`
	ReadLimit      int64         `yaml:"readLimit" split_words:"true"`
	SendBuffer     int           `yaml:"sendBuffer" split_words:"true"`
	AllowedOrigins []string      `yaml:"allowedOrigins" split_words:"true"` // empty: any origin
}

type Auth struct {
	PublicKeyPath  string        `yaml:"publicKeyPath" split_words:"true"` // empty: anonymous only
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	ClockSkew      time.Duration `yaml:"clockSkew" split_words:"true"`
	AllowAnonymous bool          `yaml:"allowAnonymous" split_words:"true"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins" split_words:"true"`
}

type Config struct {
	HTTP            HTTP          `yaml:"http"`
	GRPC            GRPC          `yaml:"grpc"`
	Logging         Logging       `yaml:"logging"`
	Postgres        Postgres      `yaml:"postgres"`
	WS              WS            `yaml:"ws"`
	Auth            Auth          `yaml:"auth"`
	CORS            CORS          `yaml:"cors"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

// LoadConfig: CONFIG_PATH (по умолчанию ./config/config.yaml) + COLLAB_* env
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.PublicKeyPath == "" && !c.Auth.AllowAnonymous {
		return errors.New("auth.publicKeyPath is required unless auth.allowAnonymous is set")
	}
	if c.Auth.PublicKeyPath != "" && c.Auth.Issuer == "" {
		return errors.New("auth.issuer is required with auth.publicKeyPath")
	}
	if c.Auth.ClockSkew < 0 || c.Auth.ClockSkew > time.Minute {
		return errors.New("auth.clockSkew must be in [0..1m]")
	}
	if c.WS.PingInterval < 0 || c.WS.SendBuffer < 0 || c.WS.ReadLimit < 0 {
		return errors.New("ws settings must not be negative")
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":9090"
	}

	if c.WS.PingInterval == 0 {
		c.WS.PingInterval = 30 * time.Second
	}
	if c.WS.WriteTimeout == 0 {
		c.WS.WriteTimeout = 5 * time.Second
	}
	if c.WS.ReadLimit == 0 {
		c.WS.ReadLimit = 1 << 20
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 64
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "collab-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}
	return nil
}
