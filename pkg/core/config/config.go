// Package config loads runtime settings: a .env file, then an optional YAML
// file, then SCREENER_* environment variables, each overriding the last.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SCREENER_DATA_DIR.
const EnvPrefix = "SCREENER"

// Config is the complete runtime configuration.
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Edgar    EdgarConfig    `mapstructure:"edgar"`
	Resolve  ResolveConfig  `mapstructure:"resolve"`
	Ratios   []string       `mapstructure:"ratios"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DataConfig locates persisted state.
type DataConfig struct {
	// Dir holds the file-backed snapshots when DatabaseURL is empty.
	Dir          string `mapstructure:"dir" validate:"required"`
	DatabaseURL  string `mapstructure:"database_url"`
	RegistryPath string `mapstructure:"registry_path" validate:"required"`
	// CatalogPath overrides the embedded concept alias catalog.
	CatalogPath string `mapstructure:"catalog_path"`
}

// EdgarConfig holds SEC access settings.
type EdgarConfig struct {
	UserAgent string   `mapstructure:"user_agent" validate:"required"`
	Forms     []string `mapstructure:"forms" validate:"min=1"`
	// IndexURL, when set, adds an index constituents page as a registry
	// source and restricts the registry to its members.
	IndexURL string `mapstructure:"index_url" validate:"omitempty,url"`
	// Timeout bounds each SEC request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ResolveConfig tunes the concept resolver.
type ResolveConfig struct {
	SheetOrder []string `mapstructure:"sheet_order"`
	Substring  bool     `mapstructure:"substring"`
}

// PipelineConfig bounds batch work.
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"min=1,max=32"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

var validate = validator.New()

// Load reads .env (if present), then path, or ./config/screener.yaml when
// path is empty and that file exists, then the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("screener")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Edgar.Timeout <= 0 {
		return fmt.Errorf("invalid config: edgar.timeout must be positive, got %s", c.Edgar.Timeout)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", ".cache/snapshots")
	v.SetDefault("data.database_url", "")
	v.SetDefault("data.registry_path", ".cache/companies.json")
	v.SetDefault("data.catalog_path", "")

	v.SetDefault("edgar.user_agent", "FilingScreener/1.0 (contact@example.com)")
	v.SetDefault("edgar.forms", []string{"10-K", "10-Q"})
	v.SetDefault("edgar.index_url", "")
	v.SetDefault("edgar.timeout", 30*time.Second)

	v.SetDefault("resolve.sheet_order", []string{"balance_sheet", "income", "cashflow"})
	v.SetDefault("resolve.substring", false)

	v.SetDefault("ratios", []string{"ROE", "EPS", "P/E", "P/FCF", "P/CF", "D/E", "PretaxMargin"})

	v.SetDefault("pipeline.concurrency", 4)

	v.SetDefault("api.addr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// overrideFromEnv honours the unprefixed names the deployment already uses.
func overrideFromEnv(cfg *Config) {
	if cfg.Data.DatabaseURL == "" {
		cfg.Data.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if ua := os.Getenv("SEC_USER_AGENT"); ua != "" && os.Getenv(EnvPrefix+"_EDGAR_USER_AGENT") == "" {
		cfg.Edgar.UserAgent = ua
	}
}
