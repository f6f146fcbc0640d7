// Package config loads cabinet configuration from a YAML file and
// CABINET_* environment variables, with validated defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`

	// BodyLimit caps request bodies (uploads), in bytes.
	BodyLimit int `mapstructure:"body_limit" validate:"gt=0"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type StorageConfig struct {
	Region          string `mapstructure:"region" validate:"required"`
	Bucket          string `mapstructure:"bucket" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	Endpoint        string `mapstructure:"endpoint"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`
}

type CacheConfig struct {
	ListingTTL    time.Duration `mapstructure:"listing_ttl" validate:"gt=0"`
	BreadcrumbTTL time.Duration `mapstructure:"breadcrumb_ttl" validate:"gt=0"`
	PresignTTL    time.Duration `mapstructure:"presign_ttl" validate:"gt=0"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
}

// Load reads configuration from the given file (optional), the default
// lookup paths and the environment, then validates the result.
func Load(configFile string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cabinet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cabinet")
	}

	v.SetEnvPrefix("CABINET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.body_limit", 256<<20)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.listing_ttl", "30s")
	v.SetDefault("cache.breadcrumb_ttl", "1h")
	v.SetDefault("cache.presign_ttl", "1h")
	v.SetDefault("logging.level", "info")
}
