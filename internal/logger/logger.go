// Package logger provides JSON structured logging using zerolog
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string `mapstructure:"level" json:"level"`
	Debug      bool   `mapstructure:"debug" json:"debug"`
	Output     string `mapstructure:"output" json:"output"`
	TimeFormat string `mapstructure:"time_format" json:"time_format"`
	// Console switches to zerolog's human-readable writer.
	Console bool `mapstructure:"console" json:"console"`
}

type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
}

func DefaultConfig() *Config {
	return &Config{
		Level:      getEnvOrDefault("LOG_LEVEL", "info"),
		Debug:      getEnvBoolOrDefault("DEBUG", false),
		Output:     getEnvOrDefault("LOG_OUTPUT", "stderr"),
		TimeFormat: getEnvOrDefault("LOG_TIME_FORMAT", ""),
	}
}

type zlog struct {
	logger zerolog.Logger
	out    io.Writer
}

// New builds a Logger from config. A nil config uses DefaultConfig.
func New(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	}

	timeFormat := time.RFC3339
	if config.TimeFormat != "" {
		timeFormat = config.TimeFormat
	}

	if config.Console {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	level := zerolog.InfoLevel
	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}

	zerolog.TimeFieldFormat = timeFormat

	return &zlog{
		logger: zerolog.New(output).Level(level).With().Timestamp().Logger(),
		out:    output,
	}, nil
}

// NewWithWriter builds a Logger writing JSON to w; used by tests that inspect output.
func NewWithWriter(w io.Writer, level zerolog.Level) Logger {
	return &zlog{logger: zerolog.New(w).Level(level), out: w}
}

// Tee returns a Logger that also writes every event, as JSON, to w.
func Tee(l Logger, w io.Writer) Logger {
	z, ok := l.(*zlog)
	if !ok || z.out == nil {
		return l
	}
	out := zerolog.MultiLevelWriter(z.out, w)
	return &zlog{logger: z.logger.Output(out), out: out}
}

func (z *zlog) Trace() *zerolog.Event { return z.logger.Trace() }
func (z *zlog) Debug() *zerolog.Event { return z.logger.Debug() }
func (z *zlog) Info() *zerolog.Event  { return z.logger.Info() }
func (z *zlog) Warn() *zerolog.Event  { return z.logger.Warn() }
func (z *zlog) Error() *zerolog.Event { return z.logger.Error() }
func (z *zlog) With() zerolog.Context { return z.logger.With() }

func (z *zlog) WithComponent(component string) zerolog.Logger {
	return z.logger.With().Str("component", component).Logger()
}

// NewTestLogger creates a no-op logger for testing that discards all output
func NewTestLogger() Logger {
	return &zlog{logger: zerolog.New(io.Discard).Level(zerolog.Disabled), out: io.Discard}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	value = strings.ToLower(value)

	return value == "true" || value == "1" || value == "yes" || value == "on"
}
