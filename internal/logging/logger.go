package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

const defaultHistory = 1000

var (
	mutex           sync.RWMutex
	isInitialized   bool
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	logBuffer       *RingBuffer
	logCallback     LogCallback
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
	// History is how many entries the ring buffer keeps for late subscribers.
	History int `toml:"history"`
}

// Initialize sets up the logging system. Loggers handed out earlier get
// their level updated; GetLogger returns rebuilt ones that include the
// buffer and journal handlers.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	history := config.History
	if history <= 0 {
		history = defaultHistory
	}
	logBuffer = NewRingBuffer(history)

	globalLevelVar.Set(levelForLocked(""))
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(levelForLocked(module))
		moduleLoggers[module] = newModuleLogger(module, levelVar)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// levelForLocked resolves the configured level of module, falling back to
// the global level and then to info. An empty module means the global level.
func levelForLocked(module string) slog.Level {
	if !isInitialized {
		return slog.LevelInfo
	}
	if module != "" {
		if l, ok := parseLevel(globalConfig.Modules[module]); ok {
			return l
		}
	}
	if l, ok := parseLevel(globalConfig.Level); ok {
		return l
	}
	return slog.LevelInfo
}

func newModuleLogger(module string, level slog.Leveler) *slog.Logger {
	format := "text"
	if isInitialized {
		format = globalConfig.Format
	}
	return slog.New(createHandler(format, level)).With("module", module)
}

// GetBuffer returns the log ring buffer, or nil before Initialize.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// main uses it to publish entries on the event bus.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// GetLogger returns the logger of module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, ok := moduleLoggers[module]
	mutex.RUnlock()
	if ok {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(levelForLocked(module))
	logger = newModuleLogger(module, levelVar)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// SetLevel changes the level of module at runtime. An empty module changes
// the default logger.
func SetLevel(module, level string) error {
	l, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("invalid log level %q", level)
	}
	if module == "" {
		globalLevelVar.Set(l)
		return nil
	}

	GetLogger(module)
	mutex.RLock()
	defer mutex.RUnlock()
	moduleLevelVars[module].Set(l)
	return nil
}

// Levels returns the current level of every module logger, keyed by module.
func Levels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()
	out := make(map[string]string, len(moduleLevelVars))
	for module, levelVar := range moduleLevelVars {
		out[module] = levelToString(levelVar.Level())
	}
	return out
}

// Modules returns the names of all module loggers in sorted order.
func Modules() []string {
	mutex.RLock()
	defer mutex.RUnlock()
	names := make([]string, 0, len(moduleLevelVars))
	for module := range moduleLevelVars {
		names = append(names, module)
	}
	sort.Strings(names)
	return names
}

// createHandler builds the handler chain: stdout (unless discarded),
// journald when present, and the ring buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	// looks the buffer up per record, so it is safe before Initialize
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable reports whether stdout goes anywhere. /dev/null is a
// device and is treated as unavailable.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// sink returns the current buffer and callback.
func sink() (*RingBuffer, LogCallback) {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer, logCallback
}
