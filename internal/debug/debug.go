package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session lifecycle, errors)
	LevelLive    = 2 // Live info (state changes, captures, timers)
	LevelVerbose = 3 // Verbose (recovery details, command handling)
	LevelTrace   = 4 // Trace (GPIO, device calls, very low level)
)

var (
	mu     sync.Mutex
	level  int
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (session start/end, errors)
// 2 = live info (state transitions, slot saves, countdown)
// 3 = verbose (recovery policy, command dispatch)
// 4 = trace (GPIO, raw device calls)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	if level > LevelOff {
		logger = log.New(os.Stdout, "[boothd] ", log.LstdFlags|log.Lmicroseconds)
	}
}

// SetOutput redirects debug output, e.g. to mirror the log stream
// to connected web operators.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	mu.Lock()
	defer mu.Unlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func printf(minLevel int, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if level >= minLevel && logger != nil {
		logger.Printf(format, args...)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	printf(LevelInfo, "[INFO] "+format, args...)
}

// Session prints a session lifecycle event (level 1).
func Session(id string, event string) {
	printf(LevelInfo, "[INFO] Session %s: %s", id, event)
}

// Error prints a debug error (level 1+).
func Error(err error) {
	printf(LevelInfo, "[ERROR] %v", err)
}

// Summary prints an important banner (level 1).
func Summary(title string) {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	printf(LevelInfo, "[INFO]   %s = %v", name, value)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	printf(LevelLive, "[LIVE] "+format, args...)
}

// State prints a session state transition (level 2).
func State(from, to string) {
	printf(LevelLive, "[LIVE] State: %s -> %s", from, to)
}

// Slot prints a slot capture event (level 2).
func Slot(index, total uint) {
	printf(LevelLive, "[LIVE] Slot %d/%d saved", index+1, total)
}

// Countdown prints a countdown tick (level 2).
func Countdown(remaining int) {
	printf(LevelLive, "[LIVE] Countdown: %d", remaining)
}

// --- Level 3 functions (Verbose) ---

// Verbose prints a level 3 message.
func Verbose(format string, args ...interface{}) {
	printf(LevelVerbose, "[VERBOSE] "+format, args...)
}

// Printf is an alias for Verbose for compatibility.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Timer prints a scheduler task event (level 3).
func Timer(name, event string) {
	printf(LevelVerbose, "[TIMER] %s: %s", name, event)
}

// Recovery prints a busy/timeout recovery step (level 3).
func Recovery(retry uint, detail string) {
	printf(LevelVerbose, "[RECOVERY] retry=%d %s", retry, detail)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	printf(LevelTrace, "[TRACE] "+format, args...)
}

// Device prints a raw device adapter call (level 4).
func Device(op string, detail interface{}) {
	printf(LevelTrace, "[DEVICE] %s %v", op, detail)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	printf(LevelTrace, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// Fmt returns a formatted string only if debug is enabled
// (avoids unnecessary allocations on hot paths).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
