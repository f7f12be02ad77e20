package util

import (
	"fmt"
	"io"
	"log/slog"
)

// WrapError wraps an error with a descriptive operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// SafeCloseFunc returns a deferred-close helper that logs close failures.
func SafeCloseFunc(c io.Closer, resource string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Error("failed to close resource", "resource", resource, "error", err)
		}
	}
}
