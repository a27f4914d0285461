package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`
	Inference struct {
		BaseURL string        `mapstructure:"base_url"`
		APIKey  string        `mapstructure:"api_key"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"inference"`
	Engine struct {
		PoolSize        int           `mapstructure:"pool_size"`
		StageTimeout    time.Duration `mapstructure:"stage_timeout"`
		WorkflowTimeout time.Duration `mapstructure:"workflow_timeout"`
	} `mapstructure:"engine"`
	Retention struct {
		Cron   string        `mapstructure:"cron"`
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"retention"`
	Log struct {
		Format string `mapstructure:"format"`
		Level  string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads configuration from an optional YAML file plus MAESTRO_* env
// variables. path may be empty, in which case config.yaml is searched in the
// working directory and ./config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("MAESTRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file falls back to defaults and env; an explicit path
		// that cannot be read is an error.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("db.path", "file:maestro.db")
	v.SetDefault("inference.base_url", "https://api.groq.com/openai/v1")
	// The empty default keeps the key visible to AutomaticEnv during Unmarshal.
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.timeout", 60*time.Second)
	v.SetDefault("engine.pool_size", 4)
	v.SetDefault("engine.stage_timeout", 90*time.Second)
	v.SetDefault("engine.workflow_timeout", 5*time.Minute)
	v.SetDefault("retention.cron", "0 3 * * *")
	v.SetDefault("retention.window", 30*24*time.Hour)
	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.DB.Path == "" {
		return errors.New("db.path must not be empty")
	}
	if c.Engine.PoolSize < 1 {
		return fmt.Errorf("engine.pool_size must be positive, got %d", c.Engine.PoolSize)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}
