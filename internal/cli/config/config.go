// Package config loads atomsh configuration with the usual precedence:
// flags over environment variables over the config file over defaults.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/atomstack-labs/atomsh/internal/envns"
)

// Config file names, looked up in the working directory.
const (
	ConfigFileName    = "atomsh.yaml"
	ConfigFileNameAlt = "atomsh.yml"
)

// Defaults applied before any other source.
const (
	DefaultAssetsDir    = "assets"
	DefaultDatabase     = "warehouse.duckdb"
	DefaultRegistryFile = ".atomsh/registry.db"
	DefaultConcurrency  = 4
)

// Config is the resolved atomsh configuration.
type Config struct {
	// AssetsDir holds the .msh asset definitions.
	AssetsDir string `koanf:"assets_dir"`

	// Database is the DuckDB warehouse path; ":memory:" for ephemeral.
	Database string `koanf:"database"`

	// RegistryPath is the SQLite deployment-registry path.
	RegistryPath string `koanf:"registry_path"`

	// Environment selects the namespace behavior; "prod" and
	// "production" pin the base namespace.
	Environment string `koanf:"environment"`

	// Namespace is the base namespace branch workspaces derive from.
	Namespace string `koanf:"namespace"`

	// Branch overrides git branch detection when set.
	Branch string `koanf:"branch"`

	// Concurrency bounds parallel asset builds.
	Concurrency int `koanf:"concurrency"`

	Verbose bool `koanf:"verbose"`
}

// Load resolves the configuration. cfgFile may be empty, in which case
// atomsh.yaml / atomsh.yml in the working directory is used if present.
// flags may be nil; only flags the user actually set are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"assets_dir":    DefaultAssetsDir,
		"database":      DefaultDatabase,
		"registry_path": DefaultRegistryFile,
		"namespace":     envns.DefaultBase,
		"concurrency":   DefaultConcurrency,
		"verbose":       false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = findConfigFile()
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// ATOMSH_ASSETS_DIR -> assets_dir
	if err := k.Load(env.Provider("ATOMSH_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "ATOMSH_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "env" {
				return "environment", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func findConfigFile() string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// EnsureRegistryDir creates the directory holding the registry database.
func EnsureRegistryDir(registryPath string) error {
	dir := filepath.Dir(registryPath)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	return nil
}

type configKey struct{}
type loggerKey struct{}

// WithConfig stores the config in a context.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config stored by WithConfig.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return &Config{
		AssetsDir:    DefaultAssetsDir,
		Database:     DefaultDatabase,
		RegistryPath: DefaultRegistryFile,
		Namespace:    envns.DefaultBase,
		Concurrency:  DefaultConcurrency,
	}
}

// WithLogger stores the logger in a context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from a context, falling back to a
// discard logger.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
