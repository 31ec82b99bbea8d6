package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel accepts debug, info, warn and error; empty means info.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", name)
	}
}

// Logger is the printf-style logger handed to every component.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ZapConfig selects the zap encoder, level and sink.
type ZapConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	Output     string `yaml:"output"` // stdout, stderr or a file path
	Caller     bool   `yaml:"caller"`
	Stacktrace bool   `yaml:"stacktrace"`
}

func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		Caller:     true,
		Stacktrace: true,
	}
}

// NewZapLogger builds the process logger. The returned func flushes
// buffered entries and releases an output file, if one was opened.
func NewZapLogger(config ZapConfig) (Logger, func() error, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if config.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	closeOutput := func() {}
	var sink zapcore.WriteSyncer
	switch config.Output {
	case "stdout", "":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		ws, closeFile, err := zap.Open(config.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log output %s: %w", config.Output, err)
		}
		sink = ws
		closeOutput = closeFile
	}

	var opts []zap.Option
	if config.Caller {
		// Skip Logf and the level helper that called it.
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}
	if config.Stacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	base := zap.New(zapcore.NewCore(encoder, sink, level.zapLevel()), opts...)
	sync := func() error {
		err := base.Sync()
		closeOutput()
		return err
	}
	return &zapLogger{sugar: base.Sugar()}, sync, nil
}

// NewNopLogger discards everything.
func NewNopLogger() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

type zapLogger struct {
	sugar  *zap.SugaredLogger
	prefix string
}

func (z *zapLogger) Logf(level Level, format string, args ...interface{}) {
	format = z.prefix + format
	switch level {
	case LevelDebug:
		z.sugar.Debugf(format, args...)
	case LevelWarn:
		z.sugar.Warnf(format, args...)
	case LevelError:
		z.sugar.Errorf(format, args...)
	default:
		z.sugar.Infof(format, args...)
	}
}

func (z *zapLogger) Debugf(format string, args ...interface{}) { z.Logf(LevelDebug, format, args...) }
func (z *zapLogger) Infof(format string, args ...interface{}) { z.Logf(LevelInfo, format, args...) }
func (z *zapLogger) Warnf(format string, args ...interface{}) { z.Logf(LevelWarn, format, args...) }
func (z *zapLogger) Errorf(format string, args ...interface{}) { z.Logf(LevelError, format, args...) }

// WithPrefix tags every message of base with a component prefix such as
// "module: supervisor , ".
func WithPrefix(prefix string, base Logger) Logger {
	switch b := base.(type) {
	case *zapLogger:
		return &zapLogger{sugar: b.sugar, prefix: b.prefix + prefix}
	case *prefixed:
		return &prefixed{prefix: b.prefix + prefix, base: b.base}
	}
	return &prefixed{prefix: prefix, base: base}
}

type prefixed struct {
	prefix string
	base   Logger
}

func (p *prefixed) Logf(level Level, format string, args ...interface{}) {
	p.base.Logf(level, p.prefix+format, args...)
}

func (p *prefixed) Debugf(format string, args ...interface{}) { p.Logf(LevelDebug, format, args...) }
func (p *prefixed) Infof(format string, args ...interface{}) { p.Logf(LevelInfo, format, args...) }
func (p *prefixed) Warnf(format string, args ...interface{}) { p.Logf(LevelWarn, format, args...) }
func (p *prefixed) Errorf(format string, args ...interface{}) { p.Logf(LevelError, format, args...) }
