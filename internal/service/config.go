package service

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/saadjs/nutrilog/internal/config"
)

const (
	ConfigTimezone        = "timezone"
	ConfigParserURL       = "parser.url"
	ConfigParserTimeout   = "parser.timeout"
	ConfigSearchProviders = "search.providers"
	ConfigSearchLimit     = "search.limit"
	ConfigSearchTimeout   = "search.timeout"
	ConfigSearchCacheTTL  = "search.cache_ttl"
	ConfigLogLevel        = "log_level"
	configSourceBiasKey   = "source_bias."
)

// validateConfigValue checks a stored setting before it is written.
func validateConfigValue(key, value string) error {
	switch {
	case key == ConfigTimezone:
		if _, err := time.LoadLocation(value); err != nil {
			return fmt.Errorf("unknown timezone %q", value)
		}
	case key == ConfigParserURL, key == ConfigLogLevel:
	case key == ConfigParserTimeout, key == ConfigSearchTimeout, key == ConfigSearchCacheTTL:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration like 12s", key)
		}
	case key == ConfigSearchLimit:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
	case key == ConfigSearchProviders:
		if _, err := NewSearchProviders(ProviderOptions{Order: splitList(value)}); err != nil {
			return err
		}
	case strings.HasPrefix(key, configSourceBiasKey):
		if strings.TrimPrefix(key, configSourceBiasKey) == "" {
			return fmt.Errorf("source bias key needs a provider name")
		}
		if v, err := strconv.ParseFloat(value, 64); err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a finite number", key)
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func normalizeConfigKey(key string) string {
	key = strings.TrimSpace(strings.ToLower(key))
	if strings.HasPrefix(key, configSourceBiasKey) {
		return configSourceBiasKey + normalizeProvider(strings.TrimPrefix(key, configSourceBiasKey))
	}
	return key
}

func SetConfig(db *sql.DB, key, value string) error {
	key = normalizeConfigKey(key)
	if key == "" {
		return fmt.Errorf("config key is required")
	}
	value = strings.TrimSpace(value)
	if err := validateConfigValue(key, value); err != nil {
		return err
	}
	_, err := db.Exec(`
INSERT INTO app_config(key, value, updated_at)
VALUES(?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, key, value)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

func GetConfig(db *sql.DB, key string) (string, bool, error) {
	key = normalizeConfigKey(key)
	if key == "" {
		return "", false, fmt.Errorf("config key is required")
	}
	var value string
	err := db.QueryRow(`SELECT value FROM app_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %q: %w", key, err)
	}
	return value, true, nil
}

func ListConfig(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query(`SELECT key, value FROM app_config ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config: %w", err)
	}
	return out, nil
}

// ApplyStoredConfig overlays settings saved with SetConfig onto cfg. Stored
// settings win over defaults, files and the environment.
func ApplyStoredConfig(db *sql.DB, cfg *config.Config) error {
	stored, err := ListConfig(db)
	if err != nil {
		return err
	}
	for key, value := range stored {
		if err := validateConfigValue(key, value); err != nil {
			return fmt.Errorf("stored config %q: %w", key, err)
		}
		switch {
		case key == ConfigTimezone:
			cfg.Timezone = value
		case key == ConfigParserURL:
			cfg.Parser.URL = value
		case key == ConfigLogLevel:
			cfg.LogLevel = value
		case key == ConfigParserTimeout:
			cfg.Parser.Timeout, _ = time.ParseDuration(value)
		case key == ConfigSearchTimeout:
			cfg.Search.Timeout, _ = time.ParseDuration(value)
		case key == ConfigSearchCacheTTL:
			cfg.Search.CacheTTL, _ = time.ParseDuration(value)
		case key == ConfigSearchLimit:
			cfg.Search.Limit, _ = strconv.Atoi(value)
		case key == ConfigSearchProviders:
			cfg.Search.Providers = splitList(value)
		case strings.HasPrefix(key, configSourceBiasKey):
			if cfg.SourceBias == nil {
				cfg.SourceBias = map[string]float64{}
			}
			cfg.SourceBias[strings.TrimPrefix(key, configSourceBiasKey)], _ = strconv.ParseFloat(value, 64)
		}
	}
	return nil
}

// SourceBiasFromConfig merges configured biases over the defaults.
func SourceBiasFromConfig(cfg *config.Config) SourceBias {
	bias := DefaultSourceBias()
	for provider, v := range cfg.SourceBias {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		bias[normalizeProvider(provider)] = v
	}
	return bias
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
