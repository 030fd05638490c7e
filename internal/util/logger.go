package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/config"
)

const logFilePrefix = "realmwalker_"

// LogConfig controls the global logger.
type LogConfig struct {
	Level      string
	Directory  string
	MaxBackups int
	Console    bool
	// Trace forces trace level so frame dumps are visible.
	Trace      bool
}

// DefaultLogConfig is used until the configuration is loaded.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Directory:  "logs",
		MaxBackups: 7,
		Console:    true,
	}
}

// LogConfigFromConfig reads the logging section. behaviour.debug_packets
// raises the level to trace.
func LogConfigFromConfig(cfg *config.Config) LogConfig {
	lc := DefaultLogConfig()
	logging := cfg.GetLogging()
	if logging.Level != "" {
		lc.Level = logging.Level
	}
	if logging.Directory != "" {
		lc.Directory = logging.Directory
	}
	if logging.MaxBackups > 0 {
		lc.MaxBackups = logging.MaxBackups
	}
	lc.Trace = cfg.GetBehaviour().DebugPackets
	return lc
}

// GlobalLevel resolves the level InitLogger will set. Unknown names fall
// back to info.
func (c LogConfig) GlobalLevel() zerolog.Level {
	if c.Trace {
		return zerolog.TraceLevel
	}
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func logFileName(day time.Time) string {
	return fmt.Sprintf("%s%s.log", logFilePrefix, day.Format("2006-01-02"))
}

// InitLogger points the global zerolog logger at a daily JSON file and,
// optionally, a console writer.
func InitLogger(cfg LogConfig) error {
	level := cfg.GlobalLevel()
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
	}

	logFilePath := filepath.Join(cfg.Directory, logFileName(time.Now()))
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	writers := []io.Writer{logFile}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "realmwalker").
		Caller().
		Logger()

	log.Info().
		Str("level", level.String()).
		Bool("packet_trace", cfg.Trace).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	go cleanOldLogs(cfg.Directory, cfg.MaxBackups)
	return nil
}

// cleanOldLogs keeps the newest maxBackups daily files and returns the
// paths it removed. Files not written by InitLogger are left alone.
func cleanOldLogs(directory string, maxBackups int) []string {
	if maxBackups <= 0 {
		return nil
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, logFilePrefix) && filepath.Ext(name) == ".log" {
			names = append(names, name)
		}
	}
	if len(names) <= maxBackups {
		return nil
	}

	// Dated names sort chronologically.
	sort.Strings(names)
	var removed []string
	for _, name := range names[:len(names)-maxBackups] {
		path := filepath.Join(directory, name)
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove old log file")
			continue
		}
		log.Debug().Str("file", path).Msg("removed old log file")
		removed = append(removed, path)
	}
	return removed
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
