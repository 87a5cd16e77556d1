package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the identity service.
// - Printf-style Debugf/Infof/Warnf/Errorf/Fatalf
// - key/value variants (Infow, Warnw, ...) for security events that must carry
//   userId/deviceId/age context without leaking it to clients

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = ParseLevel(l)
}

// ParseLevel maps a level name to a Level; unknown names map to Info.
func ParseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// SetOutput redirects log output (tests capture it with a bytes.Buffer).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", 0)
}

func header(lvl string) string {
	return fmt.Sprintf("%s [%s] ", time.Now().UTC().Format(time.RFC3339), strings.ToUpper(lvl))
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func output(lvl string, msg string) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Print(header(lvl) + msg)
}

func Debugf(format string, v ...interface{}) {
	if shouldLog(LevelDebug) {
		output("debug", fmt.Sprintf(format, v...))
	}
}

func Infof(format string, v ...interface{}) {
	if shouldLog(LevelInfo) {
		output("info", fmt.Sprintf(format, v...))
	}
}

func Warnf(format string, v ...interface{}) {
	if shouldLog(LevelWarn) {
		output("warn", fmt.Sprintf(format, v...))
	}
}

func Errorf(format string, v ...interface{}) {
	if shouldLog(LevelError) {
		output("error", fmt.Sprintf(format, v...))
	}
}

func Fatalf(format string, v ...interface{}) {
	output("fatal", fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Debugw logs msg followed by key=value pairs.
func Debugw(msg string, kv ...interface{}) {
	if shouldLog(LevelDebug) {
		output("debug", withFields(msg, kv))
	}
}

func Infow(msg string, kv ...interface{}) {
	if shouldLog(LevelInfo) {
		output("info", withFields(msg, kv))
	}
}

func Warnw(msg string, kv ...interface{}) {
	if shouldLog(LevelWarn) {
		output("warn", withFields(msg, kv))
	}
}

func Errorw(msg string, kv ...interface{}) {
	if shouldLog(LevelError) {
		output("error", withFields(msg, kv))
	}
}

// withFields renders pairs in call order. An odd trailing key gets value "<missing>".
func withFields(msg string, kv []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(kv[i]))
		b.WriteByte('=')
		if i+1 >= len(kv) {
			b.WriteString("<missing>")
			continue
		}
		val := fmt.Sprint(kv[i+1])
		if strings.ContainsAny(val, " \t\"=") {
			val = fmt.Sprintf("%q", val)
		}
		b.WriteString(val)
	}
	return b.String()
}

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
