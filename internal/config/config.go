package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"shinebin/internal/catalog"
	"shinebin/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	API           APIConfig           `yaml:"api"`
	Booking       BookingConfig       `yaml:"booking"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Exports       ExportConfig        `yaml:"exports"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	Address       AddressConfig       `yaml:"address"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite3 or postgres
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS                float64 `yaml:"rps"`
	Burst              int     `yaml:"burst"`
	SubmissionsPerHour int     `yaml:"submissions_per_hour"`
}

// BookingConfig holds the lifecycle knobs of the booking core.
type BookingConfig struct {
	Timezone            string        `yaml:"timezone"`
	MaxBookingDays      int           `yaml:"max_booking_days"`
	PendingTTL          time.Duration `yaml:"pending_ttl"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	RejectPriceMismatch bool          `yaml:"reject_price_mismatch"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
}

// Location resolves Timezone, falling back to UTC.
func (b BookingConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CatalogConfig struct {
	Plans          []models.Plan          `yaml:"plans"`
	Addons         []models.Addon         `yaml:"addons"`
	TimeSlots      []models.TimeSlot      `yaml:"time_slots"`
	PaymentMethods []models.PaymentMethod `yaml:"payment_methods"`
}

// Build returns the immutable catalog described by the section.
func (c CatalogConfig) Build() (*catalog.Catalog, error) {
	return catalog.New(c.Plans, c.Addons, c.TimeSlots, c.PaymentMethods)
}

type NotificationsConfig struct {
	QueueSize int            `yaml:"queue_size"`
	Telegram  TelegramConfig `yaml:"telegram"`
	Sheets    SheetsConfig   `yaml:"sheets"`
	AMQP      AMQPConfig     `yaml:"amqp"`
	Retry     RetryConfig    `yaml:"retry"`
}

type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled"`
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
	Debug    bool    `yaml:"debug"`

	// OperatorCommands lets the users in ChatIDs manage bookings through the bot.
	OperatorCommands bool `yaml:"operator_commands"`
}

type SheetsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

type AMQPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

// AddressConfig selects the address-suggestion provider. An empty provider
// disables suggestions; "history" suggests addresses of earlier bookings.
type AddressConfig struct {
	Provider string `yaml:"provider"`
	MinChars int    `yaml:"min_chars"`
	Limit    int    `yaml:"limit"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

const AddressProviderHistory = "history"

// Path returns the config file selected by CONFIG_PATH.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Booking.MaxBookingDays < 0 {
		return errors.New("booking.max_booking_days must not be negative")
	}
	if c.Booking.PendingTTL < 0 {
		return errors.New("booking.pending_ttl must not be negative")
	}

	tg := c.Notifications.Telegram
	if tg.Enabled && (tg.BotToken == "" || len(tg.ChatIDs) == 0) {
		return errors.New("telegram notifications require bot_token and chat_ids")
	}
	sh := c.Notifications.Sheets
	if sh.Enabled && (sh.CredentialsFile == "" || sh.SpreadsheetID == "") {
		return errors.New("sheets notifications require credentials_file and spreadsheet_id")
	}
	if c.Notifications.AMQP.Enabled && c.Notifications.AMQP.URL == "" {
		return errors.New("amqp forwarding requires url")
	}

	for _, key := range c.API.Auth.APIKeys {
		if strings.TrimSpace(key.Key) == "" {
			return fmt.Errorf("api key %q is empty", key.Name)
		}
	}

	switch c.Address.Provider {
	case "", AddressProviderHistory:
	default:
		return fmt.Errorf("unsupported address provider %q", c.Address.Provider)
	}

	if _, err := c.Catalog.Build(); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "shinebin"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.SubmissionsPerHour == 0 {
		c.API.RateLimit.SubmissionsPerHour = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Booking defaults
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Booking.PendingTTL == 0 {
		c.Booking.PendingTTL = models.DefaultPendingTTL * time.Hour
	}
	if c.Booking.SweepInterval == 0 {
		c.Booking.SweepInterval = models.DefaultSweepInterval * time.Second
	}
	if c.Booking.CacheTTL == 0 {
		c.Booking.CacheTTL = models.DefaultSlotCacheTTL * time.Second
	}

	// Catalog defaults: each list falls back to the stock one independently
	if len(c.Catalog.Plans) == 0 {
		c.Catalog.Plans = catalog.DefaultPlans()
	}
	if c.Catalog.Addons == nil {
		c.Catalog.Addons = catalog.DefaultAddons()
	}
	if len(c.Catalog.TimeSlots) == 0 {
		c.Catalog.TimeSlots = catalog.DefaultTimeSlots()
	}
	if len(c.Catalog.PaymentMethods) == 0 {
		c.Catalog.PaymentMethods = catalog.DefaultPaymentMethods()
	}

	if c.Address.MinChars == 0 {
		c.Address.MinChars = 3
	}
	if c.Address.Limit == 0 {
		c.Address.Limit = 5
	}

	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = models.NotificationQueueSize
	}
	if c.Notifications.Retry.MaxRetries == 0 {
		c.Notifications.Retry.MaxRetries = 5
	}
	if c.Notifications.Retry.BaseDelay == 0 {
		c.Notifications.Retry.BaseDelay = 2 * time.Second
	}
	if c.Notifications.Retry.MaxDelay == 0 {
		c.Notifications.Retry.MaxDelay = time.Minute
	}
	if c.Notifications.Sheets.SheetName == "" {
		c.Notifications.Sheets.SheetName = "Bookings"
	}
	if c.Notifications.AMQP.Exchange == "" {
		c.Notifications.AMQP.Exchange = "shinebin.events"
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}
