// Package config collects the settings of the tarnav tools. Values come from the environment,
// optionally seeded from a .env file, and may be overridden by command line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Environment variable names.
const (
	ArchiveDirVar   = "TARNAV_ARCHIVE_DIR"
	ListenVar       = "TARNAV_LISTEN"
	PrefixVar       = "TARNAV_PREFIX"
	RootVar         = "TARNAV_ROOT"
	LogLevelVar     = "TARNAV_LOG_LEVEL"
	LogFormatVar    = "TARNAV_LOG_FORMAT"
	IndexCacheVar   = "TARNAV_INDEX_CACHE"
	MaxLinkDepthVar = "TARNAV_MAX_LINK_DEPTH"
)

// Config holds every tunable of the CLI and the server.
type Config struct {
	ArchiveDir   string // Directory holding <name>.tar archives served over HTTP.
	Listen       string // ip:port of the HTTP server.
	Prefix       string // URL path the server is mounted at.
	Root         string // Directory inside each archive that request paths are relative to.
	LogLevel     string
	LogFormat    string // "text" or "json".
	IndexCache   int    // Number of archive catalogs kept in memory by the server.
	MaxLinkDepth int    // Links followed before resolution fails.
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ArchiveDir:   "/var/archives/",
		Listen:       "127.0.0.1:18123",
		Prefix:       "/",
		LogLevel:     "info",
		LogFormat:    "text",
		IndexCache:   64,
		MaxLinkDepth: 40,
	}
}

// Load returns the defaults overridden by the environment. A .env file in the working directory
// is read first when present; variables already set in the environment take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv applies the variables returned by lookup on top of the defaults.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		return nil
	}
	str(ArchiveDirVar, &cfg.ArchiveDir)
	str(ListenVar, &cfg.Listen)
	str(PrefixVar, &cfg.Prefix)
	str(RootVar, &cfg.Root)
	str(LogLevelVar, &cfg.LogLevel)
	str(LogFormatVar, &cfg.LogFormat)
	if err := num(IndexCacheVar, &cfg.IndexCache); err != nil {
		return nil, err
	}
	if err := num(MaxLinkDepthVar, &cfg.MaxLinkDepth); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values that cannot be used as given.
func (cfg *Config) Validate() error {
	if cfg.IndexCache < 1 {
		return fmt.Errorf("index cache size must be positive, got %d", cfg.IndexCache)
	}
	if cfg.MaxLinkDepth < 1 {
		return fmt.Errorf("maximum link depth must be positive, got %d", cfg.MaxLinkDepth)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	if !strings.HasPrefix(cfg.Prefix, "/") {
		return fmt.Errorf("prefix must start with /, got %q", cfg.Prefix)
	}
	if cfg.Root != "" && !strings.HasSuffix(cfg.Root, "/") {
		cfg.Root += "/"
	}
	return nil
}

// AddLogFlags registers the logging flags, shared by every command.
func (cfg *Config) AddLogFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
}

// AddReaderFlags registers flags that tune archive navigation.
func (cfg *Config) AddReaderFlags(flags *pflag.FlagSet) {
	flags.IntVar(&cfg.MaxLinkDepth, "max-link-depth", cfg.MaxLinkDepth, "Maximum number of links followed while resolving a path")
}

// AddServerFlags registers the HTTP server flags.
func (cfg *Config) AddServerFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&cfg.ArchiveDir, "archives", "i", cfg.ArchiveDir, "Directory containing the archives to serve")
	flags.StringVarP(&cfg.Listen, "listen", "l", cfg.Listen, "IP:Port to listen on")
	flags.StringVarP(&cfg.Prefix, "prefix", "p", cfg.Prefix, "Request path prefix")
	flags.StringVar(&cfg.Root, "root", cfg.Root, "Directory inside each archive that request paths start from")
	flags.IntVar(&cfg.IndexCache, "index-cache", cfg.IndexCache, "Number of archive indexes kept in memory")
}
