package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"axiscli/internal/config"
)

// Both binaries share one process-wide logger. It is built on first
// InitializeLogger and replaces slog's default.
var (
	globalLogger     *slog.Logger
	globalLoggerOnce sync.Once

	logFileMu sync.Mutex
	logFile   *os.File
)

type traceIDKey struct{}

// InitializeLogger builds the process logger from cfg. Only the first call
// has an effect; later calls return the same logger.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var err error
	globalLoggerOnce.Do(func() {
		var out io.Writer
		if out, err = logOutput(cfg); err != nil {
			return
		}
		handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
			AddSource: cfg.Development,
			Level:     parseLogLevel(cfg.Level),
		})
		globalLogger = slog.New(&traceHandler{Handler: handler})
		slog.SetDefault(globalLogger)
	})
	return globalLogger, err
}

// GetLogger returns the process logger, or slog's default before
// InitializeLogger has run.
func GetLogger() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// logOutput picks the sink for cfg.Output. Console output goes to stderr so
// command output on stdout stays machine readable.
func logOutput(cfg config.LoggingConfig) (io.Writer, error) {
	mode := strings.ToLower(cfg.Output)
	if mode != "file" && mode != "both" {
		return os.Stderr, nil
	}

	f, err := openLogFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logFileMu.Lock()
	logFile = f
	logFileMu.Unlock()

	if mode == "both" {
		return io.MultiWriter(os.Stderr, f), nil
	}
	return f, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// traceHandler stamps trace_id on records logged with a traced context.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetTraceID(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// parseLogLevel accepts slog level names plus "warning". Anything else
// logs at info.
func parseLogLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// WithTraceID returns ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID returns the trace ID carried by ctx, or "".
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// CloseLogFile closes the log file opened for file output.
func CloseLogFile() error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ResetLoggerForTesting drops the process logger so a test can initialize
// a fresh one.
func ResetLoggerForTesting() {
	_ = CloseLogFile()
	globalLogger = nil
	globalLoggerOnce = sync.Once{}
}
