package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string         `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath string         `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`
	GRPC        GRPCConfig     `yaml:"grpc"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Sessions    SessionsConfig `yaml:"sessions"`
	Identity    IdentityConfig `yaml:"identity"`
	Audit       AuditConfig    `yaml:"audit"`
}

type GRPCConfig struct {
	Port         int           `yaml:"port" env:"GRPC_PORT" env-default:"44044"`
	Timeout      time.Duration `yaml:"timeout" env:"GRPC_TIMEOUT" env-default:"10s"`
	TrustedPeers []string      `yaml:"trusted_peers" env:"GRPC_TRUSTED_PEERS" env-separator:","`
}

type MetricsConfig struct {
	Port int `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

type SessionsConfig struct {
	DefaultTTLHours   int           `yaml:"default_ttl_hours" env:"SESSION_DEFAULT_TTL_HOURS" env-default:"24"`
	RememberMeTTLDays int           `yaml:"remember_me_ttl_days" env:"SESSION_REMEMBER_ME_TTL_DAYS" env-default:"30"`
	MaxActive         int           `yaml:"max_active" env:"SESSION_MAX_ACTIVE" env-default:"5"`
	BackgroundTimeout time.Duration `yaml:"background_timeout" env:"SESSION_BACKGROUND_TIMEOUT" env-default:"10s"`
}

func (c SessionsConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLHours) * time.Hour
}

func (c SessionsConfig) RememberMeTTL() time.Duration {
	return time.Duration(c.RememberMeTTLDays) * 24 * time.Hour
}

type IdentityConfig struct {
	Issuer            string        `yaml:"issuer" env:"IDENTITY_ISSUER" env-default:"sessions"`
	SigningSecret     string        `yaml:"signing_secret" env:"IDENTITY_SIGNING_SECRET" env-required:"true"`
	AccessTTL         time.Duration `yaml:"access_ttl" env:"IDENTITY_ACCESS_TTL" env-default:"1h"`
	RefreshTTL        time.Duration `yaml:"refresh_ttl" env:"IDENTITY_REFRESH_TTL" env-default:"720h"`
	Timeout           time.Duration `yaml:"timeout" env:"IDENTITY_TIMEOUT" env-default:"3s"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" env:"IDENTITY_RETRY_BACKOFF" env-default:"500ms"`
	AttemptsPerMinute int           `yaml:"attempts_per_minute" env:"IDENTITY_ATTEMPTS_PER_MINUTE" env-default:"10"`
}

type AuditConfig struct {
	Buffer int `yaml:"buffer" env:"AUDIT_BUFFER" env-default:"256"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	if !flag.Parsed() {
		flag.StringVar(&res, "config", "", "path to config file")
	}
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
