package config

import (
	"fmt"

	"clipvault/internal/access"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// DefaultCategories is the fixed tag vocabulary seeded at startup when the
// config file does not override it.
var DefaultCategories = []string{
	"Вайны",
	"Волны",
	"Тряски",
	"Передвижения",
	"Easy",
	"Hard",
	"Другое",
}

// Config holds the application's configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Access   AccessConfig   `toml:"access"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DatabaseConfig holds the catalog store configuration.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// CatalogConfig holds the tag vocabulary.
type CatalogConfig struct {
	Categories []string `toml:"categories"`
}

// AccessConfig holds the access-window store configuration. Path defaults to
// the catalog path; the two stores share a file but never a table.
type AccessConfig struct {
	Path     string  `toml:"path"`
	AdminIDs []int64 `toml:"admin_ids"`
}

// LoggingConfig holds the logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// envOverrides maps CLIPVAULT_* environment variables onto config fields.
type envOverrides struct {
	DBPath       string  `envconfig:"DB_PATH"`
	AccessDBPath string  `envconfig:"ACCESS_DB_PATH"`
	AdminIDs     []int64 `envconfig:"ADMIN_IDS"`
	LogLevel     string  `envconfig:"LOG_LEVEL"`
}

// LoadConfig loads the configuration from a TOML file.
func LoadConfig(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyEnv overlays environment variables onto the loaded file values.
// CLIPVAULT_* variables win; the deployment's historical DB_PATH, ADMIN_IDS
// and ADMIN_ID names are still honored when the prefixed ones are unset.
func (c *Config) ApplyEnv(lookup func(string) string) error {
	var ov envOverrides
	if err := envconfig.Process("clipvault", &ov); err != nil {
		return fmt.Errorf("invalid CLIPVAULT_* environment: %w", err)
	}
	if ov.DBPath != "" {
		c.Database.Path = ov.DBPath
	} else if v := lookup("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if ov.AccessDBPath != "" {
		c.Access.Path = ov.AccessDBPath
	}
	if len(ov.AdminIDs) > 0 {
		c.Access.AdminIDs = append(c.Access.AdminIDs, ov.AdminIDs...)
	} else {
		legacy := access.ParseAdminIDs(lookup("ADMIN_IDS"))
		for id := range access.ParseAdminIDs(lookup("ADMIN_ID")) {
			legacy[id] = struct{}{}
		}
		for id := range legacy {
			c.Access.AdminIDs = append(c.Access.AdminIDs, id)
		}
	}
	if ov.LogLevel != "" {
		c.Logging.Level = ov.LogLevel
	}
	return nil
}

// ParseAndValidate fills defaults for anything the file and environment left
// unset.
func (c *Config) ParseAndValidate() error {
	if c.Database.Path == "" {
		c.Database.Path = "clipvault.db"
	}
	if c.Access.Path == "" {
		c.Access.Path = c.Database.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if len(c.Catalog.Categories) == 0 {
		c.Catalog.Categories = append([]string(nil), DefaultCategories...)
	}
	return nil
}

// AdminIDSet returns the configured admin IDs as a set for role resolution.
func (c *Config) AdminIDSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(c.Access.AdminIDs))
	for _, id := range c.Access.AdminIDs {
		set[id] = struct{}{}
	}
	return set
}
