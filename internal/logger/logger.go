// Package logger provides levelled logging for the lakegate CLI.
// Debug and info messages are printed to stderr only when verbose mode is
// enabled via the --verbose flag. Warnings and errors are always printed.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names so every pipeline log line can be filtered the same way.
const (
	FieldRunID = "run_id"
	FieldKey   = "key"
	FieldStage = "stage"
	FieldCheck = "check"
	FieldZone  = "zone"
	FieldError = "error"
	FieldCount = "count"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	base              = build(os.Stderr, false)
)

func build(w io.Writer, v bool) *zap.SugaredLogger {
	level := zapcore.WarnLevel
	if v {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeLevel: func(l zapcore.Level, pae zapcore.PrimitiveArrayEncoder) {
			pae.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	base = build(output, v)
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build(w, verbose)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	current().Debugf(format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	current().Infof(format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	current().Warnf(format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	current().Errorf(format, args...)
}

// Entry is a logger bound to structured fields.
// It follows the verbosity switch at the time each message is written.
type Entry struct {
	fields []any
}

// With returns an Entry carrying the given key-value pairs.
func With(keysAndValues ...any) Entry {
	return Entry{fields: keysAndValues}
}

// With returns a copy of e with more key-value pairs.
func (e Entry) With(keysAndValues ...any) Entry {
	fields := make([]any, 0, len(e.fields)+len(keysAndValues))
	fields = append(fields, e.fields...)
	return Entry{fields: append(fields, keysAndValues...)}
}

// Debug prints a message with the entry's fields if verbose mode is enabled.
func (e Entry) Debug(format string, args ...any) {
	current().With(e.fields...).Debugf(format, args...)
}

// Info prints a message with the entry's fields if verbose mode is enabled.
func (e Entry) Info(format string, args ...any) {
	current().With(e.fields...).Infof(format, args...)
}

// Warn prints a warning with the entry's fields.
func (e Entry) Warn(format string, args ...any) {
	current().With(e.fields...).Warnf(format, args...)
}

// Error prints an error with the entry's fields.
func (e Entry) Error(format string, args ...any) {
	current().With(e.fields...).Errorf(format, args...)
}
