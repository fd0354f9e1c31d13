package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBDialect     = "sqlite"
	defaultDBDSN         = "sqlworker.db"
	defaultJournalPath   = "sqlworker-journal.db"
	defaultWorkers       = 4
	defaultQueueCapacity = 1024
	defaultRetryWindow   = time.Minute
	defaultRetryBackoff  = 10 * time.Millisecond
	defaultLogMaxSizeMB  = 50
	defaultLogMaxBackups = 3

	envListenAddr    = "SQLWORKER_LISTEN_ADDR"
	envDBDialect     = "SQLWORKER_DB_DIALECT"
	envDBDSN         = "SQLWORKER_DB_DSN"
	envJournalPath   = "SQLWORKER_JOURNAL_PATH"
	envWorkers       = "SQLWORKER_WORKERS"
	envQueueCapacity = "SQLWORKER_QUEUE_CAPACITY"
	envRetryWindow   = "SQLWORKER_RETRY_WINDOW"
	envRetryBackoff  = "SQLWORKER_RETRY_BACKOFF"
	envOpTimeout     = "SQLWORKER_OP_TIMEOUT"
	envLogLevel      = "SQLWORKER_LOG_LEVEL"
	envLogPath       = "SQLWORKER_LOG_PATH"
	envLogMaxSizeMB  = "SQLWORKER_LOG_MAX_SIZE_MB"
	envLogMaxBackups = "SQLWORKER_LOG_MAX_BACKUPS"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBDialect     string
	DBDSN         string
	JournalPath   string
	Workers       int
	QueueCapacity int
	RetryWindow   time.Duration
	RetryBackoff  time.Duration
	OpTimeout     time.Duration
	LogLevel      slog.Level
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numbers and durations fall back to their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBDialect:     defaultDBDialect,
		DBDSN:         defaultDBDSN,
		JournalPath:   defaultJournalPath,
		Workers:       defaultWorkers,
		QueueCapacity: defaultQueueCapacity,
		RetryWindow:   defaultRetryWindow,
		RetryBackoff:  defaultRetryBackoff,
		LogLevel:      slog.LevelInfo,
		LogMaxSizeMB:  defaultLogMaxSizeMB,
		LogMaxBackups: defaultLogMaxBackups,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBDialect); v != "" {
		cfg.DBDialect = strings.ToLower(v)
	}
	if v := os.Getenv(envDBDSN); v != "" {
		cfg.DBDSN = v
	}
	// An explicitly empty journal path disables the journal.
	if v, ok := os.LookupEnv(envJournalPath); ok {
		cfg.JournalPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.LogPath = os.Getenv(envLogPath)

	cfg.Workers = envInt(envWorkers, cfg.Workers, 1)
	cfg.QueueCapacity = envInt(envQueueCapacity, cfg.QueueCapacity, 1)
	cfg.LogMaxSizeMB = envInt(envLogMaxSizeMB, cfg.LogMaxSizeMB, 1)
	cfg.LogMaxBackups = envInt(envLogMaxBackups, cfg.LogMaxBackups, 0)
	cfg.RetryWindow = envDuration(envRetryWindow, cfg.RetryWindow)
	cfg.RetryBackoff = envDuration(envRetryBackoff, cfg.RetryBackoff)
	cfg.OpTimeout = envDuration(envOpTimeout, cfg.OpTimeout)

	return cfg
}

func envInt(key string, def, min int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// LogWriter returns base, teed to a size-rotated file when LogPath is set.
// The returned closer is nil when no file is used.
func (c Config) LogWriter(base io.Writer) (io.Writer, io.Closer, error) {
	if c.LogPath == "" {
		return base, nil, nil
	}

	dir := filepath.Dir(c.LogPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	rotator := &lumberjack.Logger{
		Filename:   c.LogPath,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
	}
	return io.MultiWriter(base, rotator), rotator, nil
}
