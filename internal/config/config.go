package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gravitas-games/gridstash/pkg/inventory"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	JWT       JWTConfig       `yaml:"jwt"`
	Redis     RedisConfig     `yaml:"redis"`
	Inventory InventoryConfig `yaml:"inventory"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// JWTConfig holds JWT authentication settings
type JWTConfig struct {
	Issuer              string `yaml:"issuer"`
	PublicKeyURL        string `yaml:"public_key_url"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	BlacklistPrefix string `yaml:"blacklist_prefix"`
}

// InventoryConfig describes the containers every new player inventory starts with
type InventoryConfig struct {
	Backpack         inventory.ContainerMeta   `yaml:"backpack"`
	Pockets          []inventory.ContainerMeta `yaml:"pockets"`
	MinPerishDelayMS int                       `yaml:"min_perish_delay_ms"`
	AutosaveSeconds  int                       `yaml:"autosave_seconds"` // 0 disables periodic saves
}

// MinPerishDelay returns the perish timer floor as a duration
func (c InventoryConfig) MinPerishDelay() time.Duration {
	return time.Duration(c.MinPerishDelayMS) * time.Millisecond
}

// CatalogConfig points at the item definitions
type CatalogConfig struct {
	Path string `yaml:"path"` // empty means the built-in sample catalog
}

// StorageConfig selects where inventory snapshots are kept
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory, sqlite or redis
	SQLitePath  string `yaml:"sqlite_path"`
	RedisPrefix string `yaml:"redis_prefix"`
	Compression string `yaml:"compression"` // fastest, default, better or best
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and fills in defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not provided
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.JWT.PublicKeyRefreshHrs == 0 {
		cfg.JWT.PublicKeyRefreshHrs = 24
	}
	if cfg.Redis.BlacklistPrefix == "" {
		cfg.Redis.BlacklistPrefix = "blacklist:"
	}
	if cfg.Inventory.Backpack.Grid.W <= 0 || cfg.Inventory.Backpack.Grid.H <= 0 {
		cfg.Inventory.Backpack = inventory.DefaultBackpackMeta()
	}
	if cfg.Inventory.MinPerishDelayMS <= 0 {
		cfg.Inventory.MinPerishDelayMS = int(inventory.DefaultMinPerishDelay / time.Millisecond)
	}
	// an omitted multiplier means normal decay
	if cfg.Inventory.Backpack.PerishMultiplier == 0 {
		cfg.Inventory.Backpack.PerishMultiplier = 1
	}
	for i, p := range cfg.Inventory.Pockets {
		if p.Grid.W <= 0 || p.Grid.H <= 0 {
			return nil, fmt.Errorf("invalid pocket %d: grid must be positive", i)
		}
		if p.PerishMultiplier == 0 {
			cfg.Inventory.Pockets[i].PerishMultiplier = 1
		}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "./data/inventories.db"
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = "inventory:"
	}
	if cfg.Storage.Compression == "" {
		cfg.Storage.Compression = "default"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	switch cfg.Storage.Driver {
	case "memory", "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	return &cfg, nil
}

// InventoryOptions turns the inventory section into construction options
func (c *Config) InventoryOptions() []inventory.Option {
	opts := []inventory.Option{
		inventory.WithBackpack(c.Inventory.Backpack),
		inventory.WithMinPerishDelay(c.Inventory.MinPerishDelay()),
	}
	for _, p := range c.Inventory.Pockets {
		opts = append(opts, inventory.WithPocket(p))
	}
	return opts
}
