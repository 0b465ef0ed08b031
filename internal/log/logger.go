// Package log builds the zap logger shared by the CLI and the web server:
// a console core for humans plus a file core, JSON or plain text.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/On-Jun9/MetaPipe/pkg/types"
)

type Logger struct {
	*zap.Logger
	console io.Writer
	file    *os.File
}

// New logs to stderr and appends to logFilePath. An empty path disables the
// file core.
func New(logFilePath string, logJSON bool, level string) (*Logger, error) {
	l := &Logger{console: os.Stdout}

	var fileSink zapcore.WriteSyncer
	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		l.file = file
		fileSink = zapcore.AddSync(file)
	}

	l.Logger = build(zapcore.Lock(os.Stderr), fileSink, logJSON, ParseLevel(level))
	return l, nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func build(console, file zapcore.WriteSyncer, logJSON bool, level zapcore.Level) *zap.Logger {
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), console, level),
	}
	if file != nil {
		enc := zapcore.NewConsoleEncoder(encoderConfig())
		if logJSON {
			jsonCfg := encoderConfig()
			jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
			jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
			enc = zapcore.NewJSONEncoder(jsonCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, file, level))
	}
	return zap.New(zapcore.NewTee(cores...))
}

// ParseLevel maps debug/info/warn/error to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) Close() error {
	if l.Logger != nil {
		_ = l.Logger.Sync()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// LogAction records the outcome of one metadata action.
func (l *Logger) LogAction(res types.ActionResult, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("media_id", res.MediaID),
		zap.String("action", string(res.Action)),
		zap.Bool("extracted", res.Extracted),
		zap.Bool("mapped", res.Mapped),
		zap.Int("added", res.Added),
		zap.Int("removed", res.Removed),
		zap.Duration("duration", duration),
	}
	if res.Skipped != "" {
		fields = append(fields, zap.String("skipped", res.Skipped))
	}
	if err != nil {
		l.Error(fmt.Sprintf("%s failed: %s", res.Action, res.MediaID), append(fields, zap.Error(err))...)
		return
	}
	l.Info(fmt.Sprintf("%s: %s", res.Action, res.MediaID), fields...)
}

func (l *Logger) Summary(summary types.IngestSummary) {
	fmt.Fprintln(l.console, "\n=== MetaPipe Summary ===")
	fmt.Fprintf(l.console, "Scanned files:  %d\n", summary.ScannedFiles)
	fmt.Fprintf(l.console, "Ingested:       %d\n", summary.Ingested)
	fmt.Fprintf(l.console, "Extracted:      %d\n", summary.Extracted)
	fmt.Fprintf(l.console, "Mapped:         %d\n", summary.Mapped)
	fmt.Fprintf(l.console, "Failed:         %d\n", summary.Failed)
	fmt.Fprintf(l.console, "Duration:       %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintln(l.console, "========================")
}

func (l *Logger) Progress(current, total int, filename string) {
	fmt.Fprintf(l.console, "\r[%d/%d] %s", current, total, filename)
}

// NewNop discards everything. Used when no logger is configured.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), console: io.Discard}
}
