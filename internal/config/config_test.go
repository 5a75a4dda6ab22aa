package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"shinebin/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("SHINEBIN_TEST_API_KEY", "secret-key")

	yamlContent := `
database:
  driver: sqlite3
  path: "test.db"
booking:
  timezone: "America/Chicago"
  pending_ttl: 24h
api:
  auth:
    enabled: true
    api_keys:
      - name: operator
        key: "${SHINEBIN_TEST_API_KEY}"
        permissions: ["read:bookings", "write:bookings"]
catalog:
  plans:
    - id: one-time
      name: One-Time Cleaning
      price: 12.5
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.API.Auth.APIKeys[0].Key)
	assert.Equal(t, 24*time.Hour, cfg.Booking.PendingTTL)
	assert.Equal(t, "America/Chicago", cfg.Booking.Timezone)
	require.Len(t, cfg.Catalog.Plans, 1)
	assert.Equal(t, models.Money(1250), cfg.Catalog.Plans[0].Price)

	// untouched sections fall back to defaults
	assert.Len(t, cfg.Catalog.TimeSlots, 5)
	assert.Len(t, cfg.Catalog.Addons, 2)
	assert.Equal(t, models.DefaultMaxBookingDays, cfg.Booking.MaxBookingDays)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{Database: DatabaseConfig{Driver: "sqlite3", Path: "path"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing sqlite path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "postgres with dsn", mutate: func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "postgres://x" }},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "telegram without chats", mutate: func(c *Config) {
			c.Notifications.Telegram = TelegramConfig{Enabled: true, BotToken: "t"}
		}, wantErr: true},
		{name: "sheets without spreadsheet", mutate: func(c *Config) {
			c.Notifications.Sheets = SheetsConfig{Enabled: true, CredentialsFile: "creds.json"}
		}, wantErr: true},
		{name: "history address provider", mutate: func(c *Config) { c.Address.Provider = AddressProviderHistory }},
		{name: "unknown address provider", mutate: func(c *Config) { c.Address.Provider = "geocoder" }, wantErr: true},
		{name: "duplicate slot", mutate: func(c *Config) {
			c.Catalog.TimeSlots = []models.TimeSlot{{ID: "a"}, {ID: "a"}}
		}, wantErr: true},
		{name: "empty api key", mutate: func(c *Config) {
			c.API.Auth.APIKeys = []APIClientKey{{Name: "ops"}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 48*time.Hour, cfg.Booking.PendingTTL)
	assert.Equal(t, 5*time.Minute, cfg.Booking.SweepInterval)
	assert.Equal(t, 10*time.Minute, cfg.Booking.CacheTTL)
	assert.Equal(t, models.NotificationQueueSize, cfg.Notifications.QueueSize)
	assert.Equal(t, 5, cfg.Notifications.Retry.MaxRetries)

	c, err := cfg.Catalog.Build()
	require.NoError(t, err)
	assert.True(t, c.HasSlot("12:00-14:00"))
}

func TestBookingLocation(t *testing.T) {
	assert.Equal(t, time.UTC, BookingConfig{}.Location())
	assert.Equal(t, time.UTC, BookingConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "America/Chicago", BookingConfig{Timezone: "America/Chicago"}.Location().String())
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "configs/config.yaml", Path())
	t.Setenv("CONFIG_PATH", "/etc/shinebin.yaml")
	assert.Equal(t, "/etc/shinebin.yaml", Path())
}
