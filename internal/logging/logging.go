// Package logging configures the process-wide zap logger: a size-rotated
// file sink and a console sink sharing one UTC text layout, with
// chromedriver's own chatter kept below the fold. Setup runs once per
// process; everything downstream just uses zap.L().
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultDir is the log directory used when none is configured,
	// relative to the working directory.
	DefaultDir = "logs"
	// FileName is the active log file inside the log directory.
	FileName = "application.log"
	// DefaultSuppressed is the named logger quieted to WARN when no
	// other name is configured. It matches the logger the browser
	// wrapper routes chromedriver output to.
	DefaultSuppressed = "chromedriver"

	// Rotation limits for the file sink. Rotation itself is lumberjack's
	// job; the file is opened lazily on first write.
	maxSizeMB  = 10
	maxBackups = 5
)

// SetupError wraps a failure to prepare the log directory or sinks.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Config controls the logging bootstrap.
type Config struct {
	// Dir is the log directory. Empty means DefaultDir.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Suppress names a noisy logger to quiet to WARN and above.
	// Empty means DefaultSuppressed.
	Suppress string `yaml:"suppress" mapstructure:"suppress"`
}

func (c Config) suppressed() string {
	if c.Suppress == "" {
		return DefaultSuppressed
	}
	return c.Suppress
}

var (
	setupOnce sync.Once
	setupErr  error
)

// Setup builds the two-sink logger and installs it as the zap global.
// It applies exactly once per process; later calls return the first
// outcome without touching the configuration again.
func Setup(cfg Config) error {
	setupOnce.Do(func() {
		var logger *zap.Logger
		logger, setupErr = newLogger(cfg)
		if setupErr == nil {
			zap.ReplaceGlobals(logger)
		}
	})
	return setupErr
}

// newLogger builds the logger without installing it. Split from Setup so
// tests can construct loggers repeatedly.
func newLogger(cfg Config) (*zap.Logger, error) {
	dir, err := EnsureDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return zap.New(newCore(cfg, dir), zap.AddCaller()), nil
}

// newCore assembles the tee of the two sinks behind the suppression rule.
// The file sink records INFO and above; the console sink carries the full
// DEBUG stream. Both share the same encoder.
func newCore(cfg Config, dir string) zapcore.Core {
	enc := zapcore.NewConsoleEncoder(encoderConfig())

	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	})
	consoleSink := zapcore.Lock(os.Stdout)

	core := zapcore.NewTee(
		zapcore.NewCore(enc, fileSink, zapcore.InfoLevel),
		zapcore.NewCore(enc, consoleSink, zapcore.DebugLevel),
	)
	return newSuppressCore(core, cfg.suppressed(), zapcore.WarnLevel)
}

// encoderConfig is the single layout shared by both sinks.
func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = utcMillisTimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// utcMillisTimeEncoder renders timestamps in UTC with millisecond
// precision regardless of the host timezone.
func utcMillisTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z0700"))
}

// EnsureDir resolves and creates the log directory. Empty means
// DefaultDir. Creating a directory that already exists succeeds.
func EnsureDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &SetupError{Err: eris.Wrapf(err, "logging: create log dir %s", dir)}
	}
	return dir, nil
}

// suppressCore drops entries logged below min by one named logger (or its
// children), passing everything else through to the wrapped core.
type suppressCore struct {
	zapcore.Core
	name string
	min  zapcore.Level
}

func newSuppressCore(core zapcore.Core, name string, min zapcore.Level) zapcore.Core {
	return &suppressCore{Core: core, name: name, min: min}
}

func (c *suppressCore) With(fields []zapcore.Field) zapcore.Core {
	return &suppressCore{Core: c.Core.With(fields), name: c.name, min: c.min}
}

func (c *suppressCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.drops(ent) {
		return ce
	}
	return c.Core.Check(ent, ce)
}

func (c *suppressCore) drops(ent zapcore.Entry) bool {
	if ent.Level >= c.min {
		return false
	}
	return ent.LoggerName == c.name || strings.HasPrefix(ent.LoggerName, c.name+".")
}
