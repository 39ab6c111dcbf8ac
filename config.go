package gourdianfanout

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var (
	defaultLogsDir               = "logs"
	defaultMaxBytes        int64 = 10 * 1024 * 1024
	defaultRetainCount           = 2
	defaultBufferSize            = 1024
	defaultMinLevel              = DEBUG
	defaultLogFormat             = FormatPlain
	defaultOverflowPolicy        = DropNewest
	defaultBlockTimeout          = 10 * time.Millisecond
	defaultShutdownGrace         = 5 * time.Second
	defaultTimestampFormat       = "2006-01-02 15:04:05.000000"
)

// Config defines the pipeline configuration.
//
// String fields (MinLevelStr, OverflowStr, FormatStr) are what configuration
// files and environment variables set; when non-empty they take precedence
// over their typed counterparts.
//
// Example:
//
//	config := gourdianfanout.Config{
//	    LogsDir:     "/var/log/myapp",
//	    MaxBytes:    10 * 1024 * 1024, // 10MB
//	    RetainCount: 2,
//	    MinLevel:    gourdianfanout.INFO,
//	}
type Config struct {
	LogsDir         string           `json:"log_directory" mapstructure:"log_directory"`
	MaxBytes        int64            `json:"max_segment_size_bytes" mapstructure:"max_segment_size_bytes"`
	RetainCount     int              `json:"retained_segment_count" mapstructure:"retained_segment_count"`
	MinLevelStr     string           `json:"minimum_severity" mapstructure:"minimum_severity"`
	BufferSize      int              `json:"buffer_size" mapstructure:"buffer_size"`
	OverflowStr     string           `json:"overflow_policy" mapstructure:"overflow_policy"`
	BlockTimeout    time.Duration    `json:"block_timeout" mapstructure:"block_timeout"`
	ShutdownGrace   time.Duration    `json:"shutdown_grace" mapstructure:"shutdown_grace"`
	FormatStr       string           `json:"format" mapstructure:"format"`
	TimestampFormat string           `json:"timestamp_format" mapstructure:"timestamp_format"`
	DiagnosticRate  float64          `json:"diagnostic_rate" mapstructure:"diagnostic_rate"`
	DiagnosticBurst int              `json:"diagnostic_burst" mapstructure:"diagnostic_burst"`
	EnableCaller    bool             `json:"enable_caller" mapstructure:"enable_caller"`
	// LevelOverrides sets a minimum severity per event source, replacing
	// MinLevel for events whose "source" field equals a key or starts with
	// the key followed by '.'. The longest key wins; matching ignores case.
	LevelOverrides  map[string]Level `json:"minimum_severity_overrides" mapstructure:"minimum_severity_overrides"`
	MinLevel        Level            `json:"-" mapstructure:"-"`
	Overflow        OverflowPolicy   `json:"-" mapstructure:"-"`
	LogFormat       LogFormat        `json:"-" mapstructure:"-"`
	ErrorHandler    func(error)      `json:"-" mapstructure:"-"`
	Clock           func() time.Time `json:"-" mapstructure:"-"`
}

// DefaultConfig returns the built-in defaults: ./logs, 10MB segments, two
// retained segments per stream, every severity recorded.
func DefaultConfig() Config {
	return Config{
		LogsDir:         defaultLogsDir,
		MaxBytes:        defaultMaxBytes,
		RetainCount:     defaultRetainCount,
		BufferSize:      defaultBufferSize,
		BlockTimeout:    defaultBlockTimeout,
		ShutdownGrace:   defaultShutdownGrace,
		TimestampFormat: defaultTimestampFormat,
		DiagnosticRate:  defaultDiagnosticRate,
		DiagnosticBurst: defaultDiagnosticBurst,
		MinLevel:        defaultMinLevel,
		Overflow:        defaultOverflowPolicy,
		LogFormat:       defaultLogFormat,
	}
}

// Validate checks the configuration without touching the file system.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxBytes < 0 {
		errs = append(errs, &ConfigError{Field: "max_segment_size_bytes", Err: errors.New("cannot be negative")})
	}
	if c.RetainCount < 0 {
		errs = append(errs, &ConfigError{Field: "retained_segment_count", Err: errors.New("cannot be negative")})
	}
	if c.BufferSize < 0 {
		errs = append(errs, &ConfigError{Field: "buffer_size", Err: errors.New("cannot be negative")})
	}
	if c.BlockTimeout < 0 {
		errs = append(errs, &ConfigError{Field: "block_timeout", Err: errors.New("cannot be negative")})
	}
	if c.ShutdownGrace < 0 {
		errs = append(errs, &ConfigError{Field: "shutdown_grace", Err: errors.New("cannot be negative")})
	}
	if c.DiagnosticRate < 0 {
		errs = append(errs, &ConfigError{Field: "diagnostic_rate", Err: errors.New("cannot be negative")})
	}
	if c.MinLevelStr != "" {
		if _, err := ParseLevel(c.MinLevelStr); err != nil {
			errs = append(errs, &ConfigError{Field: "minimum_severity", Err: err})
		}
	} else if !c.MinLevel.Valid() {
		errs = append(errs, &ConfigError{Field: "minimum_severity", Err: fmt.Errorf("invalid log level: %d", int32(c.MinLevel))})
	}
	for source, level := range c.LevelOverrides {
		if strings.TrimSpace(source) == "" {
			errs = append(errs, &ConfigError{Field: "minimum_severity_overrides", Err: errors.New("source cannot be empty")})
		} else if !level.Valid() {
			errs = append(errs, &ConfigError{Field: "minimum_severity_overrides", Err: fmt.Errorf("%s: invalid log level: %d", source, int32(level))})
		}
	}
	if _, err := ParseOverflowPolicy(c.OverflowStr); err != nil {
		errs = append(errs, &ConfigError{Field: "overflow_policy", Err: err})
	}
	if _, err := ParseLogFormat(c.FormatStr); err != nil {
		errs = append(errs, &ConfigError{Field: "format", Err: err})
	}
	return errors.Join(errs...)
}

// resolved returns a validated copy with defaults filled in and string
// fields applied to their typed counterparts.
func (c Config) resolved() (Config, error) {
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	if c.LogsDir == "" {
		c.LogsDir = defaultLogsDir
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = defaultMaxBytes
	}
	if c.RetainCount == 0 {
		c.RetainCount = defaultRetainCount
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.BlockTimeout == 0 {
		c.BlockTimeout = defaultBlockTimeout
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	if c.TimestampFormat == "" {
		c.TimestampFormat = defaultTimestampFormat
	}
	if c.DiagnosticRate == 0 {
		c.DiagnosticRate = defaultDiagnosticRate
	}
	if c.DiagnosticBurst <= 0 {
		c.DiagnosticBurst = defaultDiagnosticBurst
	}

	if c.MinLevelStr != "" {
		c.MinLevel, _ = ParseLevel(c.MinLevelStr)
	}
	c.LevelOverrides = maps.Clone(c.LevelOverrides)
	if c.OverflowStr != "" {
		c.Overflow, _ = ParseOverflowPolicy(c.OverflowStr)
	}
	if c.FormatStr != "" {
		c.LogFormat, _ = ParseLogFormat(c.FormatStr)
	}
	return c, nil
}

// Environment variables read by ApplyEnvOverrides.
const (
	EnvLogDir        = "LOG_DIR"
	EnvMaxBytes      = "LOG_MAX_BYTES"
	EnvRetain        = "LOG_RETAIN"
	EnvLevel         = "LOG_LEVEL"
	EnvBuffer        = "LOG_BUFFER"
	EnvOverflow      = "LOG_OVERFLOW"
	EnvFormat        = "LOG_FORMAT"
	EnvShutdownGrace = "LOG_SHUTDOWN_GRACE"
	EnvCaller        = "LOG_CALLER"

	// EnvLevelOverrides holds comma-separated source=level pairs, for
	// example "System=info,Microsoft=info".
	EnvLevelOverrides = "LOG_LEVEL_OVERRIDES"
)

// ApplyEnvOverrides overwrites fields from the LOG_* environment variables
// that are set. A value that cannot be converted is reported and leaves the
// field unchanged.
func (c *Config) ApplyEnvOverrides() error {
	var errs []error

	if v, ok := os.LookupEnv(EnvLogDir); ok && v != "" {
		c.LogsDir = v
	}
	if v, ok := os.LookupEnv(EnvMaxBytes); ok {
		if n, err := cast.ToInt64E(v); err != nil {
			errs = append(errs, &ConfigError{Field: EnvMaxBytes, Err: err})
		} else {
			c.MaxBytes = n
		}
	}
	if v, ok := os.LookupEnv(EnvRetain); ok {
		if n, err := cast.ToIntE(v); err != nil {
			errs = append(errs, &ConfigError{Field: EnvRetain, Err: err})
		} else {
			c.RetainCount = n
		}
	}
	if v, ok := os.LookupEnv(EnvBuffer); ok {
		if n, err := cast.ToIntE(v); err != nil {
			errs = append(errs, &ConfigError{Field: EnvBuffer, Err: err})
		} else {
			c.BufferSize = n
		}
	}
	if v, ok := os.LookupEnv(EnvShutdownGrace); ok {
		if d, err := cast.ToDurationE(v); err != nil {
			errs = append(errs, &ConfigError{Field: EnvShutdownGrace, Err: err})
		} else {
			c.ShutdownGrace = d
		}
	}
	if v, ok := os.LookupEnv(EnvCaller); ok {
		if b, err := cast.ToBoolE(v); err != nil {
			errs = append(errs, &ConfigError{Field: EnvCaller, Err: err})
		} else {
			c.EnableCaller = b
		}
	}
	if v, ok := os.LookupEnv(EnvLevelOverrides); ok && v != "" {
		if overrides, err := parseLevelOverrides(v); err != nil {
			errs = append(errs, &ConfigError{Field: EnvLevelOverrides, Err: err})
		} else {
			c.LevelOverrides = overrides
		}
	}
	if v, ok := os.LookupEnv(EnvLevel); ok && v != "" {
		c.MinLevelStr = v
	}
	if v, ok := os.LookupEnv(EnvOverflow); ok && v != "" {
		c.OverflowStr = v
	}
	if v, ok := os.LookupEnv(EnvFormat); ok && v != "" {
		c.FormatStr = v
	}

	return errors.Join(errs...)
}

// parseLevelOverrides parses "source=level[,source=level...]".
func parseLevelOverrides(s string) (map[string]Level, error) {
	overrides := make(map[string]Level)
	for pair := range strings.SplitSeq(s, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		source, name, ok := strings.Cut(pair, "=")
		source = strings.TrimSpace(source)
		if !ok || source == "" {
			return nil, fmt.Errorf("invalid override %q: expected source=level", pair)
		}
		level, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		overrides[source] = level
	}
	return overrides, nil
}
