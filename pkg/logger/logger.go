package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps LOG_LEVEL values to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	level       atomic.Int32
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

func New() *Logger {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters sends debug/info to out and warn/error to errOut.
func NewWithWriters(out, errOut io.Writer) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	l := &Logger{
		infoLogger:  log.New(out, "INFO: ", flags),
		warnLogger:  log.New(errOut, "WARN: ", flags),
		errorLogger: log.New(errOut, "ERROR: ", flags),
		debugLogger: log.New(out, "DEBUG: ", flags),
	}
	l.level.Store(int32(LevelInfo))
	return l
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

func (l *Logger) logf(target *log.Logger, level Level, depth int, format string, v ...interface{}) {
	if !l.enabled(level) {
		return
	}
	target.Output(depth+1, fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.logf(l.debugLogger, LevelDebug, 2, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.logf(l.infoLogger, LevelInfo, 2, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.logf(l.warnLogger, LevelWarn, 2, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.logf(l.errorLogger, LevelError, 2, format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.errorLogger.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New()

func SetLevel(level Level) {
	GlobalLogger.SetLevel(level)
}

func Info(format string, v ...interface{}) {
	GlobalLogger.logf(GlobalLogger.infoLogger, LevelInfo, 3, format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.logf(GlobalLogger.warnLogger, LevelWarn, 3, format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.logf(GlobalLogger.errorLogger, LevelError, 3, format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.logf(GlobalLogger.debugLogger, LevelDebug, 3, format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}
