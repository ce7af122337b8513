// Package logger builds the process logger. Every entry goes to the console
// and, as a "<timestamp> - <message>" line, to the append-only run log file
// that the front ends show when a fetch fails.
package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"bkam-rates/config"
)

// TimeLayout is the timestamp written at the start of each run log line
const TimeLayout = "2006-01-02 15:04:05.000000"

// RunLogEncoderConfig renders entries as "<timestamp> - <message>"
func RunLogEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
}

// ConsoleEncoderConfig is used for the stderr copy
func ConsoleEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encoderConfig.CallerKey = ""
	return encoderConfig
}

// RunLogWriter appends to the run log file. MaxSize 0 disables rotation in
// practice by using a very large threshold.
func RunLogWriter(cfg config.LogConfig) *lumberjack.Logger {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	return &lumberjack.Logger{
		Filename:  cfg.File,
		MaxSize:   maxSize,
		LocalTime: true,
	}
}

// New returns a logger writing to stderr at cfg.Level and to the run log at
// info and above. The returned close function flushes and closes the file.
func New(cfg config.LogConfig) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	if dir := filepath.Dir(cfg.File); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	runLog := RunLogWriter(cfg)

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(ConsoleEncoderConfig()), zapcore.Lock(os.Stderr), level),
		NewRunLogCore(zapcore.AddSync(runLog)),
	)

	l := zap.New(core)
	closeFn := func() error {
		_ = l.Sync()
		return runLog.Close()
	}
	return l, closeFn, nil
}

// NewRunLogCore builds the core that writes "<timestamp> - <message>" lines to w
func NewRunLogCore(w zapcore.WriteSyncer) zapcore.Core {
	return zapcore.NewCore(zapcore.NewConsoleEncoder(RunLogEncoderConfig()), w, zapcore.InfoLevel)
}

// NewRunLogOnly returns a logger that writes only to the run log file, for tests
// and for library callers that do not want console output.
func NewRunLogOnly(path string) (*zap.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run log: %w", err)
	}
	l := zap.New(NewRunLogCore(zapcore.AddSync(f)))
	return l, func() error {
		_ = l.Sync()
		return f.Close()
	}, nil
}

// Tail returns the last n lines of the run log (all lines when n <= 0).
// A missing file yields an empty string.
func Tail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read run log: %w", err)
	}

	return strings.Join(lines, "\n"), nil
}
