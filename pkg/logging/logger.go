// Package logging adapts zap onto the orchestrator's plain Logger interface,
// grounded on _examples/BaSui01-agentflow's env-driven zap construction
// (config/watcher.go's *zap.Logger field, zap.NewNop() default).
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// ZapLogger implements orchestrator.Logger on top of a *zap.SugaredLogger,
// turning the interface's variadic key/value pairs into zap's structured
// fields.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a ZapLogger. env selects the base config: "production" gets
// JSON output at Info level, anything else gets human-readable development
// output at Debug level. The LOG_LEVEL env var overrides the level when set.
func New(env string) (*ZapLogger, error) {
	var cfg zap.Config
	if strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(lvl)); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: logger.Sugar()}, nil
}

// NewNop returns a ZapLogger that discards everything, for tests.
func NewNop() *ZapLogger {
	return &ZapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }

// Sync flushes any buffered log entries. Call it before process exit.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

var _ orchestrator.Logger = (*ZapLogger)(nil)
