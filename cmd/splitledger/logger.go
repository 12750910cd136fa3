package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/splitledger/internal/config"
)

// loggerOptions carries what the runtime logger needs from flags and config.
type loggerOptions struct {
	stderr  io.Writer
	appName string
	devMode bool
	cfg     config.LoggingConfig
	// fallbackDir receives the dev log when logging.dev_file.dir is empty.
	fallbackDir string
	now         func() time.Time
}

// runtimeLogger writes every ledger log line to stderr and, in dev mode, to a daily logfmt file.
type runtimeLogger struct {
	console *charmLog.Logger
	file    *charmLog.Logger
	sink    *os.File
}

// newRuntimeLogger opens the console logger and the optional dev file.
func newRuntimeLogger(opts loggerOptions) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(opts.cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", opts.cfg.Level, err)
	}
	stderr := opts.stderr
	if stderr == nil {
		stderr = io.Discard
	}
	l := &runtimeLogger{console: newSinkLogger(stderr, opts.appName, level, charmLog.TextFormatter)}
	if !opts.devMode || !opts.cfg.DevFile.Enabled {
		return l, nil
	}

	now := opts.now
	if now == nil {
		now = time.Now
	}
	dir := strings.TrimSpace(opts.cfg.DevFile.Dir)
	if dir == "" {
		dir = opts.fallbackDir
	}
	path, err := devLogFilePath(dir, opts.appName, now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}
	l.sink = f
	l.file = newSinkLogger(f, opts.appName, level, charmLog.LogfmtFormatter)
	return l, nil
}

func newSinkLogger(w io.Writer, prefix string, level charmLog.Level, formatter charmLog.Formatter) *charmLog.Logger {
	return charmLog.NewWithOptions(w, charmLog.Options{
		Level:           level,
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	})
}

// DevLogPath returns the dev log file path, or "" when file logging is off.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil || l.sink == nil {
		return ""
	}
	return l.sink.Name()
}

// Close closes the dev log file if one is open.
func (l *runtimeLogger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func (l *runtimeLogger) log(level charmLog.Level, msg any, keyvals ...any) {
	if l == nil {
		return
	}
	l.console.Log(level, msg, keyvals...)
	if l.file != nil {
		l.file.Log(level, msg, keyvals...)
	}
}

// Debug logs at debug level.
func (l *runtimeLogger) Debug(msg any, keyvals ...any) { l.log(charmLog.DebugLevel, msg, keyvals...) }

// Info logs at info level.
func (l *runtimeLogger) Info(msg any, keyvals ...any) { l.log(charmLog.InfoLevel, msg, keyvals...) }

// Warn logs at warn level.
func (l *runtimeLogger) Warn(msg any, keyvals ...any) { l.log(charmLog.WarnLevel, msg, keyvals...) }

// Error logs at error level.
func (l *runtimeLogger) Error(msg any, keyvals ...any) { l.log(charmLog.ErrorLevel, msg, keyvals...) }

// devLogFilePath places "<app>-YYYYMMDD.log" under dir. A relative dir is anchored at
// the nearest ancestor of the working directory holding go.mod or .git.
func devLogFilePath(dir, appName string, day time.Time) (string, error) {
	base := strings.TrimSpace(dir)
	if base == "" {
		base = ".splitledger/log"
	}
	if !filepath.IsAbs(base) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		base = filepath.Join(projectRoot(cwd), base)
	}
	name := logFileStem(appName) + "-" + day.Format("20060102") + ".log"
	return filepath.Join(filepath.Clean(base), name), nil
}

// projectRoot walks up from start until it finds go.mod or .git, returning start when neither exists.
func projectRoot(start string) string {
	start = filepath.Clean(start)
	for dir := start; ; dir = filepath.Dir(dir) {
		if exists(filepath.Join(dir, "go.mod")) || exists(filepath.Join(dir, ".git")) {
			return dir
		}
		if filepath.Dir(dir) == dir {
			return start
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// logFileStem maps an app name to a file-name safe stem.
func logFileStem(appName string) string {
	stem := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, strings.TrimSpace(appName))
	stem = strings.Trim(stem, "-")
	if stem == "" {
		return "splitledger"
	}
	return stem
}
