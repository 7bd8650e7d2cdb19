package nutrilog

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saadjs/nutrilog/internal/app"
	"github.com/saadjs/nutrilog/internal/config"
	"github.com/saadjs/nutrilog/internal/db"
	"github.com/saadjs/nutrilog/internal/logging"
	"github.com/saadjs/nutrilog/internal/parser"
	"github.com/saadjs/nutrilog/internal/service"
)

// runtime is everything a logging command needs once config and storage are
// ready.
type runtime struct {
	DB     *sql.DB
	Config *config.Config
	Log    *zap.Logger
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := app.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.Load(path)
}

func resolveDBPath(cfg *config.Config) (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if cfg != nil && cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	return app.DefaultDBPath()
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	path, err := resolveDBPath(cfg)
	if err != nil {
		return nil, err
	}
	if err := app.EnsureDBDir(path); err != nil {
		return nil, err
	}
	sqldb, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return sqldb, nil
}

func withDB(run func(*sql.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sqldb, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer sqldb.Close()
	return run(sqldb)
}

// withRuntime also overlays stored settings and builds the logger, which
// writes to the command's stderr.
func withRuntime(cmd *cobra.Command, run func(*runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sqldb, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer sqldb.Close()

	if err := service.ApplyStoredConfig(sqldb, cfg); err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return run(&runtime{DB: sqldb, Config: cfg, Log: logger})
}

func providerOptions(cfg *config.Config) service.ProviderOptions {
	return service.ProviderOptions{
		Order:             cfg.Search.Providers,
		USDAAPIKey:        cfg.USDA.APIKey,
		NutritionixAppID:  cfg.Nutritionix.AppID,
		NutritionixAPIKey: cfg.Nutritionix.APIKey,
		UPCItemDBAPIKey:   cfg.UPCItemDB.APIKey,
		UPCItemDBKeyType:  cfg.UPCItemDB.KeyType,
		HTTPClient:        &http.Client{Timeout: cfg.Search.Timeout},
	}
}

func newIntake(rt *runtime) (*service.Intake, error) {
	cfg := rt.Config
	opts := providerOptions(cfg)
	providers, err := service.NewSearchProviders(opts)
	if err != nil {
		return nil, err
	}
	merger := &service.Merger{
		Providers: service.WithSearchCache(rt.DB, providers, cfg.Search.CacheTTL),
		Bias:      service.SourceBiasFromConfig(cfg),
		Timeout:   cfg.Search.Timeout,
		Log:       rt.Log,
	}
	if cfg.Search.Limit > 0 {
		merger.Limits = map[string]int{}
		for _, p := range providers {
			merger.Limits[p.Name()] = cfg.Search.Limit
		}
	}
	return &service.Intake{
		DB:       rt.DB,
		Parser:   parser.New(cfg.Parser.URL, cfg.Timezone, cfg.Parser.Timeout),
		Searcher: merger,
		Barcodes: service.NewBarcodeProviders(opts),
		Log:      rt.Log,
		Location: cfg.Location(),
	}, nil
}

// resolveDate returns date, or today's date in the configured timezone.
func resolveDate(cfg *config.Config, date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return service.DateKey(time.Now(), cfg.Location()), nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("invalid --date %q (expected YYYY-MM-DD)", date)
	}
	return date, nil
}
