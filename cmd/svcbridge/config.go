package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/cryguy/svcbridge"
)

// config is the CLI configuration file:
//
//	catalog = "services.toml"
//	catalog_driver = "file"   # or "sqlite"
//	listen = ":8080"
//	log_level = "info"
//
//	[engine]
//	memory_limit_mb = 128
//	execution_timeout = 30000
//	max_script_size_kb = 4096
type config struct {
	Catalog       string                 `toml:"catalog"`
	CatalogDriver string                 `toml:"catalog_driver"`
	Listen        string                 `toml:"listen"`
	LogLevel      string                 `toml:"log_level"`
	Engine        svcbridge.EngineConfig `toml:"engine"`
}

const (
	driverFile   = "file"
	driverSQLite = "sqlite"
)

func defaultConfig() config {
	return config{
		Catalog:       "services.toml",
		CatalogDriver: driverFile,
		Listen:        ":8080",
		LogLevel:      "info",
		Engine:        svcbridge.DefaultEngineConfig(),
	}
}

// loadConfig applies the file at path on top of the defaults. A missing
// file is not an error when path is the default location. Relative catalog
// paths are resolved against the config file's directory.
func loadConfig(path string, required bool) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, validateConfig(cfg)
	}
	if _, err := os.Stat(path); err != nil && !required && os.IsNotExist(err) {
		return cfg, validateConfig(cfg)
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	if meta.IsDefined("catalog") {
		cfg.Catalog = strings.TrimSpace(cfg.Catalog)
		if cfg.Catalog != "" && !filepath.IsAbs(cfg.Catalog) {
			cfg.Catalog = filepath.Join(filepath.Dir(path), cfg.Catalog)
		}
	}
	cfg.CatalogDriver = strings.ToLower(strings.TrimSpace(cfg.CatalogDriver))
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg config) error {
	if strings.TrimSpace(cfg.Catalog) == "" {
		return fmt.Errorf("config missing catalog")
	}
	switch cfg.CatalogDriver {
	case driverFile, driverSQLite:
	default:
		return fmt.Errorf("config catalog_driver %q must be %q or %q", cfg.CatalogDriver, driverFile, driverSQLite)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("config log_level: %w", err)
	}
	if err := svcbridge.ValidateEngineConfig(cfg.Engine); err != nil {
		return fmt.Errorf("config engine: %w", err)
	}
	return nil
}
