package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

type Mode int

const (
	MINIMAL Mode = iota
	NORMAL
	FULL
)

const timestampFormat = "2006-01-02 15:04:05"

var logrusLevels = map[Level]logrus.Level{
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
	FATAL: logrus.FatalLevel,
}

// Logger is a printf-style facade over logrus. Console output follows the
// configured Mode; file output is JSON, rotated by lumberjack.
type Logger struct {
	base   *logrus.Logger
	entry  *logrus.Entry
	mode   Mode
	mu     *sync.RWMutex
	closer io.Closer
}

type Config struct {
	Level       Level
	Mode        Mode
	LogFilePath string
	UseColors   bool
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compress    bool
}

func New(cfg Config) (*Logger, error) {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetLevel(logrusLevels[cfg.Level])
	base.SetFormatter(consoleFormatter(cfg.Mode, cfg.UseColors))

	l := &Logger{
		base:  base,
		entry: logrus.NewEntry(base),
		mode:  cfg.Mode,
		mu:    &sync.RWMutex{},
	}

	if cfg.LogFilePath != "" {
		writer, err := openRotatingFile(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to setup log file: %w", err)
		}
		base.AddHook(&fileHook{
			writer: writer,
			formatter: &logrus.JSONFormatter{
				TimestampFormat: timestampFormat,
				FieldMap: logrus.FieldMap{
					logrus.FieldKeyTime: "timestamp",
					logrus.FieldKeyMsg:  "message",
				},
			},
		})
		l.closer = writer
	}

	return l, nil
}

// Nop returns a logger that discards everything; intended for tests.
func Nop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.PanicLevel)
	return &Logger{base: base, entry: logrus.NewEntry(base), mode: MINIMAL, mu: &sync.RWMutex{}}
}

func openRotatingFile(cfg Config) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0755); err != nil {
		return nil, err
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}

	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

func consoleFormatter(mode Mode, useColors bool) logrus.Formatter {
	switch mode {
	case MINIMAL:
		return &logrus.TextFormatter{
			DisableTimestamp: true,
			ForceColors:      useColors,
			DisableColors:    !useColors,
		}
	default:
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
			ForceColors:     useColors,
			DisableColors:   !useColors,
		}
	}
}

func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// WithField returns a child logger that attaches key=value to every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		base:   l.base,
		entry:  l.entry.WithField(key, value),
		mode:   l.mode,
		mu:     l.mu,
		closer: nil,
	}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	mode := l.mode
	l.mu.RUnlock()

	entry := l.entry
	if mode == FULL {
		file, line := getCaller()
		entry = entry.WithField("caller", fmt.Sprintf("%s:%d", file, line))
	}

	switch level {
	case DEBUG:
		entry.Debugf(format, args...)
	case INFO:
		entry.Infof(format, args...)
	case WARN:
		entry.Warnf(format, args...)
	case ERROR:
		entry.Errorf(format, args...)
	case FATAL:
		entry.Fatalf(format, args...)
	}
}

func getCaller() (string, int) {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown", 0
	}
	return filepath.Base(file), line
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
}

func (l *Logger) SetLevel(level Level) {
	l.base.SetLevel(logrusLevels[level])
}

func (l *Logger) SetMode(mode Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = mode
	l.base.SetFormatter(consoleFormatter(mode, false))
}

func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return DEBUG
	case "info", "INFO":
		return INFO
	case "warn", "WARN", "warning", "WARNING":
		return WARN
	case "error", "ERROR":
		return ERROR
	case "fatal", "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func ParseMode(s string) Mode {
	switch s {
	case "minimal", "MINIMAL":
		return MINIMAL
	case "normal", "NORMAL":
		return NORMAL
	case "full", "FULL":
		return FULL
	default:
		return NORMAL
	}
}

// fileHook mirrors every entry to the rotating log file as JSON.
type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	mu        sync.Mutex
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(line)
	return err
}

var defaultLogger *Logger

func init() {
	defaultLogger, _ = New(Config{
		Level:     INFO,
		Mode:      NORMAL,
		UseColors: true,
	})
}

func Default() *Logger {
	return defaultLogger
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal(format, args...)
}
