package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// maxSourceSlots bounds the DBn_DATABASE scan. Centers are registered as
// DB1..DBn in the environment; gaps are allowed (decommissioned centers keep
// their historical slot number).
const maxSourceSlots = 32

// SourceSlot is one registered clinical database, as configured in the
// environment (DBn_DATABASE, optionally DBn_NOMBRE).
type SourceSlot struct {
	Code     string // registry code, e.g. "DB4"
	Database string // server-side path to the .gdb file
	Name     string // optional display name
}

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Result store (PostgreSQL). Optional: without it runs are computed but
	// not persisted.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Static catalogs (indicator definitions, equivalences, per-center code
	// tables) are read from this directory once at startup.
	CatalogDir string `mapstructure:"CATALOG_DIR"`

	// Shared connection parameters for the per-center Firebird databases.
	SourceHost     string `mapstructure:"SOURCE_HOST"`
	SourcePort     int    `mapstructure:"SOURCE_PORT"`
	SourceUser     string `mapstructure:"SOURCE_USER"`
	SourcePassword string `mapstructure:"SOURCE_PASSWORD"`

	ConnectTimeoutSeconds int `mapstructure:"CONNECT_TIMEOUT_SECONDS"`
	QueryTimeoutSeconds   int `mapstructure:"QUERY_TIMEOUT_SECONDS"`

	// Ordered source registry built from DBn_DATABASE entries.
	Sources []SourceSlot `mapstructure:"-"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8100")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CATALOG_DIR", "documentacion")
	v.SetDefault("SOURCE_PORT", 3050)
	v.SetDefault("CONNECT_TIMEOUT_SECONDS", 60)
	v.SetDefault("QUERY_TIMEOUT_SECONDS", 60)
	v.SetDefault("CORS_ORIGINS", "http://localhost:4200")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CATALOG_DIR")
	v.BindEnv("SOURCE_HOST")
	v.BindEnv("SOURCE_PORT")
	v.BindEnv("SOURCE_USER")
	v.BindEnv("SOURCE_PASSWORD")
	v.BindEnv("CONNECT_TIMEOUT_SECONDS")
	v.BindEnv("QUERY_TIMEOUT_SECONDS")
	for i := 1; i <= maxSourceSlots; i++ {
		v.BindEnv(fmt.Sprintf("DB%d_DATABASE", i))
		v.BindEnv(fmt.Sprintf("DB%d_NOMBRE", i))
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.Sources = loadSources(v)

	return cfg, nil
}

func loadSources(v *viper.Viper) []SourceSlot {
	var slots []SourceSlot
	for i := 1; i <= maxSourceSlots; i++ {
		database := v.GetString(fmt.Sprintf("DB%d_DATABASE", i))
		if database == "" {
			continue
		}
		slots = append(slots, SourceSlot{
			Code:     fmt.Sprintf("DB%d", i),
			Database: database,
			Name:     v.GetString(fmt.Sprintf("DB%d_NOMBRE", i)),
		})
	}
	// numeric slot order, so per-source results come back in a stable order
	sort.SliceStable(slots, func(a, b int) bool {
		return slotNumber(slots[a].Code) < slotNumber(slots[b].Code)
	})
	return slots
}

func slotNumber(code string) int {
	n := 0
	for _, r := range strings.TrimPrefix(code, "DB") {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is runnable. The catalog directory
// and at least one registered source are hard requirements; the result store
// is not (runs are simply not persisted without it).
func (c *Config) Validate() error {
	if c.CatalogDir == "" {
		return fmt.Errorf("CATALOG_DIR is required")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("no sources registered: set at least one DBn_DATABASE variable")
	}
	if c.ConnectTimeoutSeconds <= 0 || c.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("timeouts must be positive, got connect=%d query=%d",
			c.ConnectTimeoutSeconds, c.QueryTimeoutSeconds)
	}
	return nil
}
