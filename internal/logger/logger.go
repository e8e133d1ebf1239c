package logger

import (
	"crypto/md5"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin printf-style wrapper around zap. Components hold one
// instance each and log through Info/Warn/Error/Debug.
type Logger struct {
	sugar *zap.SugaredLogger
}

var levelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// New builds a logger writing to stdout and, when logFile is non-empty, to
// that file as well. Unknown levels fall back to info.
func New(logFile, level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, ok := levelMap[level]
	if !ok {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stdout"}
	if logFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logFile)
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }

func (l *Logger) Sync() { _ = l.sugar.Sync() }

const maskMaxChars = 20

// Mask renders user text safe for log lines: short inputs become a length
// marker, longer ones keep a few edge characters plus a short hash. Raw user
// text must never be logged directly. Operates on runes so multibyte input
// never produces invalid UTF-8.
func Mask(text string) string {
	runes := []rune(text)
	if len(runes) <= maskMaxChars {
		return fmt.Sprintf("[%d chars]", len(runes))
	}
	sum := md5.Sum([]byte(text))
	head := string(runes[:maskMaxChars/2])
	tail := string(runes[len(runes)-maskMaxChars/2:])
	return fmt.Sprintf("%s...%s[%x]", head, tail, sum[:4])
}
