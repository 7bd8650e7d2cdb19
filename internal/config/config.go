package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	// Embedded zone data so the default timezone resolves on minimal systems.
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "NUTRILOG"

type Config struct {
	DBPath      string             `mapstructure:"db_path"`
	Timezone    string             `mapstructure:"timezone"`
	LogLevel    string             `mapstructure:"log_level"`
	LogFormat   string             `mapstructure:"log_format"`
	Parser      ParserConfig       `mapstructure:"parser"`
	USDA        USDAConfig         `mapstructure:"usda"`
	Nutritionix NutritionixConfig  `mapstructure:"nutritionix"`
	UPCItemDB   UPCItemDBConfig    `mapstructure:"upcitemdb"`
	Search      SearchConfig       `mapstructure:"search"`
	SourceBias  map[string]float64 `mapstructure:"source_bias"`
}

type ParserConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type USDAConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type NutritionixConfig struct {
	AppID  string `mapstructure:"app_id"`
	APIKey string `mapstructure:"api_key"`
}

type UPCItemDBConfig struct {
	APIKey  string `mapstructure:"api_key"`
	KeyType string `mapstructure:"key_type"`
}

type SearchConfig struct {
	Providers []string      `mapstructure:"providers"`
	Limit     int           `mapstructure:"limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// Load reads configuration from defaults, an optional .env file, an optional
// config file and NUTRILOG_* environment variables, in increasing priority.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "")
	v.SetDefault("timezone", "Europe/Ljubljana")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")

	v.SetDefault("parser.url", "")
	v.SetDefault("parser.timeout", "20s")

	v.SetDefault("usda.api_key", "")
	v.SetDefault("nutritionix.app_id", "")
	v.SetDefault("nutritionix.api_key", "")
	v.SetDefault("upcitemdb.api_key", "")
	v.SetDefault("upcitemdb.key_type", "")

	v.SetDefault("search.providers", []string{"off", "nutritionix", "fdc"})
	v.SetDefault("search.limit", 0)
	v.SetDefault("search.timeout", "12s")
	v.SetDefault("search.cache_ttl", "168h")

	v.SetDefault("source_bias", map[string]float64{
		"off":         0,
		"nutritionix": -0.05,
		"fdc":         0.05,
	})
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q", c.Timezone)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json")
	}
	if c.Parser.Timeout <= 0 {
		return fmt.Errorf("parser timeout must be > 0")
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search timeout must be > 0")
	}
	if c.Search.Limit < 0 {
		return fmt.Errorf("search limit must be >= 0")
	}
	if c.Search.CacheTTL < 0 {
		return fmt.Errorf("search cache ttl must be >= 0")
	}
	return nil
}

// Location resolves the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
