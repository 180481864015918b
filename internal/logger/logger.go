package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	debugLvl = "debug"
	infoLvl  = "info"
	warnLvl  = "warn"
	errorLvl = "error"
)

type Logger interface {
	Debug(msg string, msgArgs ...any)
	Info(msg string, msgArgs ...any)
	Warn(msg string, msgArgs ...any)
	Error(msg string, msgArgs ...any)
	// With returns a child logger that adds key=value to every entry.
	With(key string, value any) Logger
}

// ZLBasedLogger - 'Zerolog' based implementation of Logger interface.
type ZLBasedLogger struct {
	logger zerolog.Logger
}

// NewLogger writes JSON entries to stdout.
func NewLogger(lvl string) *ZLBasedLogger {
	return NewLoggerTo(os.Stdout, lvl)
}

func NewLoggerTo(w io.Writer, lvl string) *ZLBasedLogger {
	logger := zerolog.New(w).
		Level(parseLevel(lvl)).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &ZLBasedLogger{logger: logger}
}

// Nop discards everything.
func Nop() *ZLBasedLogger {
	return &ZLBasedLogger{logger: zerolog.Nop()}
}

func parseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(lvl) {
	case errorLvl:
		return zerolog.ErrorLevel
	case warnLvl:
		return zerolog.WarnLevel
	case infoLvl:
		return zerolog.InfoLevel
	case debugLvl:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *ZLBasedLogger) Debug(msg string, msgArgs ...any) {
	l.logger.Debug().Msgf(msg, msgArgs...)
}

func (l *ZLBasedLogger) Info(msg string, msgArgs ...any) {
	l.logger.Info().Msgf(msg, msgArgs...)
}

func (l *ZLBasedLogger) Warn(msg string, msgArgs ...any) {
	l.logger.Warn().Msgf(msg, msgArgs...)
}

func (l *ZLBasedLogger) Error(msg string, msgArgs ...any) {
	l.logger.Error().Msgf(msg, msgArgs...)
}

func (l *ZLBasedLogger) With(key string, value any) Logger {
	return &ZLBasedLogger{logger: l.logger.With().Interface(key, value).Logger()}
}
