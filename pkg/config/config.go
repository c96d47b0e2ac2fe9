// Package config loads and validates the vaultd configuration.
package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the vaultd application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" default:"0.0.0.0"`
	Port int    `mapstructure:"port" default:"8080"`
}

// DatabaseConfig contains the journal database settings. An empty host
// disables the durable journal.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" default:"5432"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" default:"relicvault"`
	SSLMode  string `mapstructure:"ssl_mode" default:"disable"`
}

// Enabled reports whether a journal database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.Host != "" }

// DSN returns the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// VaultConfig contains the lifecycle parameters.
type VaultConfig struct {
	SelfAddress  string `mapstructure:"self_address" validate:"required"`
	AdminAddress string `mapstructure:"admin_address" validate:"required"`

	BaseSupply uint64 `mapstructure:"base_supply" default:"10000" validate:"gt=0"`
	GiftSupply uint64 `mapstructure:"gift_supply" default:"500" validate:"gt=0"`
	// MintDeadline is RFC 3339; empty leaves minting open.
	MintDeadline string `mapstructure:"mint_deadline"`

	FeeBps uint64 `mapstructure:"fee_bps" default:"25" validate:"lt=10000"`

	GiftAsset string `mapstructure:"gift_asset"`
	// GiftPrice is in human units of the gift asset, e.g. "100.5".
	GiftPrice string `mapstructure:"gift_price" default:"0"`
	GiftURI   string `mapstructure:"gift_uri"`
	FusedURI  string `mapstructure:"fused_uri"`

	// AssetCatalog is the path of the allow-list YAML file.
	AssetCatalog string `mapstructure:"asset_catalog"`
	// AssetDecimals converts catalog prices to base units.
	AssetDecimals int32 `mapstructure:"asset_decimals" default:"18"`
}

// BridgeConfig contains bridge endpoint settings.
type BridgeConfig struct {
	LedgerID uint32 `mapstructure:"ledger_id" default:"1"`
}

// AuthConfig guards the privileged API routes.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	OutputPath string `mapstructure:"output_path" default:"stdout"`
}

// MonitoringConfig contains metrics settings.
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled" default:"true"`
}

// ShutdownConfig contains graceful shutdown settings.
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) check() error {
	if !common.IsHexAddress(c.Vault.SelfAddress) {
		return fmt.Errorf("vault.self_address is not a valid address")
	}
	if !common.IsHexAddress(c.Vault.AdminAddress) {
		return fmt.Errorf("vault.admin_address is not a valid address")
	}
	if c.Vault.GiftAsset != "" && !common.IsHexAddress(c.Vault.GiftAsset) {
		return fmt.Errorf("vault.gift_asset is not a valid address")
	}
	if c.Vault.MintDeadline != "" {
		if _, err := time.Parse(time.RFC3339, c.Vault.MintDeadline); err != nil {
			return fmt.Errorf("vault.mint_deadline: %w", err)
		}
	}
	if _, err := ParseAmount(c.Vault.GiftPrice, c.Vault.AssetDecimals); err != nil {
		return fmt.Errorf("vault.gift_price: %w", err)
	}
	return nil
}

// Deadline returns the parsed mint deadline; zero when minting is open.
func (c *VaultConfig) Deadline() time.Time {
	if c.MintDeadline == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, c.MintDeadline)
	return t
}

// ParseAmount converts a human-readable amount ("100.5") into base units at
// the given number of decimals.
func ParseAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Shift(decimals)
	if scaled.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", s)
	}
	return out, nil
}
