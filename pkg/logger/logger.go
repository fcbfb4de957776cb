package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type zeroLogger struct {
	zl zerolog.Logger
}

func New(level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zl := zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	return &zeroLogger{zl: zl}
}

func (l *zeroLogger) Debug(msg string, keysAndValues ...interface{}) {
	withFields(l.zl.Debug(), keysAndValues).Msg(msg)
}

func (l *zeroLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(l.zl.Info(), keysAndValues).Msg(msg)
}

func (l *zeroLogger) Warn(msg string, keysAndValues ...interface{}) {
	withFields(l.zl.Warn(), keysAndValues).Msg(msg)
}

func (l *zeroLogger) Error(msg string, keysAndValues ...interface{}) {
	withFields(l.zl.Error(), keysAndValues).Msg(msg)
}

func (l *zeroLogger) Fatal(msg string, keysAndValues ...interface{}) {
	withFields(l.zl.Fatal(), keysAndValues).Msg(msg)
}

func (l *zeroLogger) With(keysAndValues ...interface{}) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, keysAndValues[i+1])
	}
	return &zeroLogger{zl: ctx.Logger()}
}

// withFields добавляет пары ключ-значение к событию лога
func withFields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, keysAndValues[i+1])
	}
	return e
}
