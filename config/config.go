// Package config provides configuration loading and validation for the
// session scanner.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chinab/octane-crawler/output"
	"github.com/chinab/octane-crawler/parsers"
)

// Sentinel validation errors.
var (
	ErrInvalidSize     = errors.New("invalid byte size")
	ErrInvalidInclude  = errors.New("invalid include pattern")
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrInvalidPrefix   = errors.New("timestamp prefix must not be negative")
)

// EnvPrefix prefixes every environment variable override, e.g.
// OCTANE_SEARCH_TERM.
const EnvPrefix = "OCTANE"

// Default configuration values.
const (
	defaultDir                = "."
	defaultInclude            = "*"
	defaultOutputFile         = "session-output.log"
	defaultFormat             = string(output.FormatXML)
	defaultTimestampPrefix    = 16
	defaultBufferSize         = "64KiB"
	defaultLargeFileThreshold = "10MB"
	defaultLargeBufferSize    = "1MiB"
	defaultLogLevel           = "info"
	defaultLogFormat          = "console"
)

// Config holds all configuration for a scan run.
type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Output  OutputConfig  `mapstructure:"output"`
	Session SessionConfig `mapstructure:"session"`
	Reader  ReaderConfig  `mapstructure:"reader"`
	Logging LoggingConfig `mapstructure:"logging"`
	Stats   StatsConfig   `mapstructure:"stats"`
}

// SearchConfig selects what to scan and which term to count.
type SearchConfig struct {
	Dir        string `mapstructure:"dir"`
	Term       string `mapstructure:"term"`
	Include    string `mapstructure:"include"`
	IgnoreCase bool   `mapstructure:"ignore_case"`
}

// OutputConfig controls the report file.
type OutputConfig struct {
	File      string `mapstructure:"file"`
	Format    string `mapstructure:"format"`
	Enabled   bool   `mapstructure:"enabled"`
	Immediate bool   `mapstructure:"immediate"`
}

// SessionConfig controls session extraction.
type SessionConfig struct {
	Pattern         string   `mapstructure:"pattern"`
	KeyFields       []string `mapstructure:"key_fields"`
	TimestampPrefix int      `mapstructure:"timestamp_prefix"`
}

// ReaderConfig holds human readable buffer sizes ("64KiB", "10MB").
type ReaderConfig struct {
	BufferSize         string `mapstructure:"buffer_size"`
	LargeFileThreshold string `mapstructure:"large_file_threshold"`
	LargeBufferSize    string `mapstructure:"large_buffer_size"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StatsConfig controls the optional run statistics file.
type StatsConfig struct {
	File string `mapstructure:"file"`
}

// ReaderSizes is ReaderConfig in bytes.
type ReaderSizes struct {
	BufferSize         int
	LargeFileThreshold int64
	LargeBufferSize    int
}

// flagKeys maps CLI flag names onto configuration keys.
var flagKeys = map[string]string{
	"dir":         "search.dir",
	"term":        "search.term",
	"include":     "search.include",
	"ignore-case": "search.ignore_case",
	"out":         "output.file",
	"format":      "output.format",
	"immediate":   "output.immediate",
	"pattern":     "session.pattern",
	"key-fields":  "session.key_fields",
	"log-format":  "logging.format",
	"stats-file":  "stats.file",
}

// Load reads configuration from defaults, an optional file, OCTANE_*
// environment variables and flags, in increasing precedence. flags may be
// nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("octane")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME/.config/octane")
		viperCfg.AddConfigPath("/etc/octane")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(viperCfg, flags); err != nil {
			return nil, err
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	if flags != nil {
		applySwitches(&config, flags)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	viperCfg := viper.New()
	setDefaults(viperCfg)

	var config Config
	// Defaults always decode.
	_ = viperCfg.Unmarshal(&config)
	return &config
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("search.dir", defaultDir)
	viperCfg.SetDefault("search.term", "")
	viperCfg.SetDefault("search.include", defaultInclude)
	viperCfg.SetDefault("search.ignore_case", false)

	viperCfg.SetDefault("output.enabled", true)
	viperCfg.SetDefault("output.file", defaultOutputFile)
	viperCfg.SetDefault("output.format", defaultFormat)
	viperCfg.SetDefault("output.immediate", false)

	viperCfg.SetDefault("session.pattern", parsers.WebSpherePattern)
	viperCfg.SetDefault("session.key_fields", parsers.DefaultKeyFields)
	viperCfg.SetDefault("session.timestamp_prefix", defaultTimestampPrefix)

	viperCfg.SetDefault("reader.buffer_size", defaultBufferSize)
	viperCfg.SetDefault("reader.large_file_threshold", defaultLargeFileThreshold)
	viperCfg.SetDefault("reader.large_buffer_size", defaultLargeBufferSize)

	viperCfg.SetDefault("logging.level", defaultLogLevel)
	viperCfg.SetDefault("logging.format", defaultLogFormat)

	viperCfg.SetDefault("stats.file", "")
}

func bindFlags(viperCfg *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := viperCfg.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// applySwitches handles flags that do not map one to one onto a key.
func applySwitches(config *Config, flags *pflag.FlagSet) {
	if on, err := flags.GetBool("no-output"); err == nil && on {
		config.Output.Enabled = false
	}
	if on, err := flags.GetBool("verbose"); err == nil && on {
		config.Logging.Level = "debug"
	}
	if on, err := flags.GetBool("quiet"); err == nil && on {
		config.Logging.Level = "warn"
	}
}

// Validate checks every value that would otherwise fail mid run.
func (c *Config) Validate() error {
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		return err
	}

	if _, err := parsers.New(c.Session.Pattern); err != nil {
		return err
	}

	if c.Session.TimestampPrefix < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPrefix, c.Session.TimestampPrefix)
	}

	if _, err := parsers.KeyFields(c.Session.KeyFields, c.Session.TimestampPrefix); err != nil {
		return err
	}

	if c.Search.Include != "" && !doublestar.ValidatePattern(c.Search.Include) {
		return fmt.Errorf("%w: %q", ErrInvalidInclude, c.Search.Include)
	}

	if _, err := c.Reader.Sizes(); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return nil
}

// Sizes parses the configured buffer sizes.
func (r ReaderConfig) Sizes() (ReaderSizes, error) {
	buf, err := parseSize("reader.buffer_size", r.BufferSize)
	if err != nil {
		return ReaderSizes{}, err
	}

	threshold, err := parseSize("reader.large_file_threshold", r.LargeFileThreshold)
	if err != nil {
		return ReaderSizes{}, err
	}

	large, err := parseSize("reader.large_buffer_size", r.LargeBufferSize)
	if err != nil {
		return ReaderSizes{}, err
	}

	return ReaderSizes{
		BufferSize:         int(buf),
		LargeFileThreshold: int64(threshold),
		LargeBufferSize:    int(large),
	}, nil
}

func parseSize(key, value string) (uint64, error) {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidSize, key, value, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidSize, key)
	}
	return n, nil
}
