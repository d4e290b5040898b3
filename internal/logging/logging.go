// internal/logging/logging.go

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

type Verbosity int

const (
	VerbosityError Verbosity = iota
	VerbosityInfo
	VerbosityDebug
)

var Logger *log.Logger

var (
	mu        sync.RWMutex
	verbosity = VerbosityInfo
	hook      func(level, message string)
	logFile   *os.File
)

func init() {
	Logger = log.New(os.Stderr, "[ReviewGreen] ", log.LstdFlags|log.Lshortfile)
}

// Init sends all further output to the log file at path.
func Init(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = file
	Logger.SetOutput(file)
	return nil
}

// Close releases the log file opened by Init.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	Logger.SetOutput(os.Stderr)
}

// SetOutput is used by tests to silence or capture output.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

func SetVerbosity(v Verbosity) {
	mu.Lock()
	verbosity = v
	mu.Unlock()
}

// ParseVerbosity maps a config level name to a Verbosity. Unknown names fall back to info.
func ParseVerbosity(level string) Verbosity {
	switch level {
	case "error", "ERROR":
		return VerbosityError
	case "debug", "DEBUG":
		return VerbosityDebug
	default:
		return VerbosityInfo
	}
}

// SetHook registers a callback that receives every emitted line, e.g. the TUI log view.
func SetHook(fn func(level, message string)) {
	mu.Lock()
	hook = fn
	mu.Unlock()
}

func shouldLog(level string) bool {
	mu.RLock()
	defer mu.RUnlock()
	switch verbosity {
	case VerbosityDebug:
		return true
	case VerbosityInfo:
		return level != "DEBUG"
	case VerbosityError:
		return level == "ERROR"
	default:
		return false
	}
}

func emit(level, format string, args ...any) {
	if !shouldLog(level) {
		return
	}
	message := fmt.Sprintf(format, args...)
	Logger.Output(3, fmt.Sprintf("[%s] %s", level, message))

	mu.RLock()
	fn := hook
	mu.RUnlock()
	if fn != nil {
		fn(level, message)
	}
}

func Debugf(format string, args ...any) { emit("DEBUG", format, args...) }
func Infof(format string, args ...any)  { emit("INFO", format, args...) }
func Warnf(format string, args ...any)  { emit("WARN", format, args...) }
func Errorf(format string, args ...any) { emit("ERROR", format, args...) }
