// Package logger provides a configured zerolog logger.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a new zerolog.Logger configured for the application.
// Call sites should use .Stack() on error events to include stacks.
func New(serviceName string) zerolog.Logger {
	// Configure zerolog to work with github.com/pkg/errors:
	// - Automatically marshal pkg/errors stack traces when present
	// - Ensure a stack is present even for std errors when .Stack() is used
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		// If the error already carries a pkg/errors stack, keep it.
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); ok {
			return err
		}
		// Otherwise, attach a stack so downstream logging can render it.
		return pkgerrors.WithStack(err)
	}

	return zerolog.New(os.Stdout).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// NewConsole returns a logger writing human-readable output, for LOG_JSON=false.
func NewConsole(serviceName string) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	return zerolog.New(w).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// LevelHandle holds the process log level and allows changing it at runtime
// through the admin endpoint.
type LevelHandle struct {
	level atomic.Int32
}

// NewLevelHandle parses the initial level and applies it globally.
func NewLevelHandle(initial string) (*LevelHandle, error) {
	h := &LevelHandle{}
	if err := h.Set(initial); err != nil {
		return nil, err
	}
	return h, nil
}

// Set parses and applies a new global level.
func (h *LevelHandle) Set(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	h.level.Store(int32(lvl))
	return nil
}

// Current returns the level last applied through this handle.
func (h *LevelHandle) Current() string {
	return zerolog.Level(h.level.Load()).String()
}
