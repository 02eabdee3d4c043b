package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Конечная структура конфигурации приложения.
type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`   // 0.0.0.0
		HTTPPort string `mapstructure:"http_port"` // 8080
	} `mapstructure:"server"`

	Backend struct {
		URL     string        `mapstructure:"url"`     // базовый URL retrieval API
		Timeout time.Duration `mapstructure:"timeout"` // 0 = лимиты транспорта
	} `mapstructure:"backend"`

	Session struct {
		HashKey    string `mapstructure:"hash_key"`  // подпись cookie, >= 32 байт
		BlockKey   string `mapstructure:"block_key"` // шифрование cookie: 16|24|32 байт, пусто = без шифрования
		MaxAgeDays int    `mapstructure:"max_age_days"`
		Secure     bool   `mapstructure:"secure"`
	} `mapstructure:"session"`

	Upload struct {
		MaxBytes int64 `mapstructure:"max_bytes"`
	} `mapstructure:"upload"`

	RateLimit struct {
		AuthPerMinute int `mapstructure:"auth_per_minute"`
		AuthBurst     int `mapstructure:"auth_burst"`
	} `mapstructure:"ratelimit"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // путь/префикс файла, пусто — только stdout
	} `mapstructure:"logs"`

	Database struct {
		Driver string `mapstructure:"driver"` // "postgres" | "mysql" | "" (история запросов в памяти)
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Telemetry struct {
		Endpoint    string `mapstructure:"endpoint"` // OTLP gRPC, пусто = выключено
		Insecure    bool   `mapstructure:"insecure"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"telemetry"`
}

// Load читает конфиг из .env/env/файла/флагов с дефолтами.
func Load(args []string) (*Config, error) {
	// .env опционален
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("dotenv: %w", err)
	}

	fs := pflag.NewFlagSet("manualbase", pflag.ContinueOnError)
	cfgFlag := fs.String("config", "", "path to config file (yaml)")
	fs.String("logs.level", "info", "log level")
	fs.String("backend.url", "http://localhost:8000", "retrieval API base URL")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")

	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout", time.Duration(0))

	v.SetDefault("session.hash_key", "CHANGE_ME")
	v.SetDefault("session.block_key", "")
	v.SetDefault("session.max_age_days", 7)
	v.SetDefault("session.secure", false)

	v.SetDefault("upload.max_bytes", int64(10*1024*1024))

	v.SetDefault("ratelimit.auth_per_minute", 30)
	v.SetDefault("ratelimit.auth_burst", 10)

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")
	v.SetDefault("logs.file", "")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.service_name", "manualbase")

	// флаги перекрывают файл и env только если заданы явно
	if err := v.BindPFlag("logs.level", fs.Lookup("logs.level")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("backend.url", fs.Lookup("backend.url")); err != nil {
		return nil, err
	}

	// Источник файла
	if cfgFile := firstNonEmpty(*cfgFlag, os.Getenv("CONFIG_FILE")); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "manualbase"))
		}
		v.AddConfigPath("/etc/manualbase")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	cfg.Backend.URL = strings.TrimRight(cfg.Backend.URL, "/")
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(args []string) *Config {
	cfg, err := Load(args)
	if err != nil {
		panic(err)
	}
	return cfg
}

// SessionMaxAge — срок жизни cookie сессии в секундах.
func (c *Config) SessionMaxAge() int {
	return c.Session.MaxAgeDays * 24 * 60 * 60
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Session.HashKey) == "" || c.Session.HashKey == "CHANGE_ME" {
		return errors.New("session.hash_key must be set (not empty and not CHANGE_ME)")
	}
	if len(c.Session.HashKey) < 32 {
		return errors.New("session.hash_key must be at least 32 bytes")
	}
	switch len(c.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return errors.New("session.block_key must be 16, 24 or 32 bytes")
	}
	if c.Session.MaxAgeDays <= 0 {
		return errors.New("session.max_age_days must be positive")
	}
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.url must be an absolute URL, got %q", c.Backend.URL)
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be positive")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
