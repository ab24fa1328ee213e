package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/malganis13/g2a-automation/internal/logging"
	"github.com/malganis13/g2a-automation/internal/pricing"
)

const envPrefix = "REPRICER"

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	G2A       G2AConfig       `mapstructure:"g2a"`
	Repricing RepricingConfig `mapstructure:"repricing"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	EnvFile     string `mapstructure:"env_file"`
}

// StorageConfig selects and tunes the durable store backend.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the check cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	ChangePause     time.Duration `mapstructure:"change_pause"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// G2AConfig covers marketplace API access.
type G2AConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
	PageSize       int           `mapstructure:"page_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	JobPollDelay   time.Duration `mapstructure:"job_poll_delay"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RepricingConfig seeds the settings store until an operator writes it.
type RepricingConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	UndercutAmount      float64  `mapstructure:"undercut_amount"`
	MinPrice            float64  `mapstructure:"min_price"`
	MaxPrice            float64  `mapstructure:"max_price"`
	DailyLimit          int      `mapstructure:"daily_limit"`
	CycleLimit          int      `mapstructure:"cycle_limit"`
	ProtectSingleSeller bool     `mapstructure:"protect_single_seller"`
	ExcludedProducts    []string `mapstructure:"excluded_products"`
	IncludedProducts    []string `mapstructure:"included_products"`
}

// AlertingConfig defines price change notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram notification parameters.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Loader reads configuration and can re-read it on demand.
type Loader struct {
	path string

	mu      sync.RWMutex
	current *Config
}

// NewLoader returns a loader bound to an optional config file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Load reads the configuration once, keeping already exported environment values.
func (l *Loader) Load() (*Config, error) {
	return l.read(false)
}

// Reload re-reads the env file and config file, letting the env file win
// over values a previous load exported.
func (l *Loader) Reload() (*Config, error) {
	return l.read(true)
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *Loader) read(override bool) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	if l.path != "" {
		v.SetConfigFile(l.path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}
	if err := loadEnvFile(v.GetString("app.env_file"), override); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = &cfg
	l.mu.Unlock()
	return &cfg, nil
}

func loadEnvFile(path string, override bool) error {
	if path == "" {
		return nil
	}
	load := godotenv.Load
	if override {
		load = godotenv.Overload
	}
	if err := load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindAliases accepts the variable names operators already keep in .env.
func bindAliases(v *viper.Viper) error {
	aliases := map[string]string{
		"g2a.client_id":               "G2A_CLIENT_ID",
		"g2a.client_secret":           "G2A_CLIENT_SECRET",
		"g2a.base_url":                "G2A_API_BASE",
		"alerting.telegram.bot_token": "TELEGRAM_BOT_TOKEN",
		"alerting.telegram.chat_id":   "TELEGRAM_CHAT_ID",
	}
	for key, alias := range aliases {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "g2a-repricer")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.env_file", ".env")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "repricer.db")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 2)
	v.SetDefault("storage.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.change_pause", "2s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x67326172))

	v.SetDefault("g2a.base_url", "https://gateway.g2a.com")
	v.SetDefault("g2a.request_timeout", "30s")
	v.SetDefault("g2a.lookup_timeout", "10s")
	v.SetDefault("g2a.page_size", 100)
	v.SetDefault("g2a.max_attempts", 3)
	v.SetDefault("g2a.retry_delay", "2s")
	v.SetDefault("g2a.job_poll_delay", "4s")
	v.SetDefault("g2a.user_agent", "g2a-repricer/1.0")

	v.SetDefault("repricing.enabled", false)
	v.SetDefault("repricing.undercut_amount", 0.01)
	v.SetDefault("repricing.min_price", 0.10)
	v.SetDefault("repricing.max_price", 100.0)
	v.SetDefault("repricing.daily_limit", 20)
	v.SetDefault("repricing.cycle_limit", 0)
	v.SetDefault("repricing.protect_single_seller", true)
	v.SetDefault("repricing.excluded_products", []string{})
	v.SetDefault("repricing.included_products", []string{})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres", "postgresql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.ChangePause < 0 {
		return fmt.Errorf("scheduler.change_pause cannot be negative")
	}
	if c.G2A.BaseURL == "" {
		return fmt.Errorf("g2a.base_url is required")
	}
	if c.G2A.PageSize <= 0 || c.G2A.PageSize > 100 {
		return fmt.Errorf("g2a.page_size must be between 1 and 100")
	}
	if c.G2A.MaxAttempts < 0 {
		return fmt.Errorf("g2a.max_attempts cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if err := c.Repricing.Settings().Validate(); err != nil {
		return fmt.Errorf("repricing: %w", err)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// Settings converts the configured defaults into repricing settings.
func (r RepricingConfig) Settings() pricing.Settings {
	s := pricing.Settings{
		Enabled:             r.Enabled,
		UndercutAmount:      decimal.NewFromFloat(r.UndercutAmount),
		MinPrice:            decimal.NewFromFloat(r.MinPrice),
		MaxPrice:            decimal.NewFromFloat(r.MaxPrice),
		DailyLimit:          r.DailyLimit,
		CycleLimit:          r.CycleLimit,
		ProtectSingleSeller: r.ProtectSingleSeller,
		ExcludedProducts:    r.ExcludedProducts,
		IncludedProducts:    r.IncludedProducts,
	}
	return s.Normalize()
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
