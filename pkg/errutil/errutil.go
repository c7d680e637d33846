// Package errutil runs an operation and logs its error to the matching
// category logger.
package errutil

import (
	"errors"
	"fmt"

	"github.com/small-frappuccino/eventcore/pkg/log"
)

var errNilFunc = errors.New("nil function provided")

// HandleDiscordError executes fn and logs any error as a Discord-related
// error. It returns whatever error fn returns, unmodified.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	log.DiscordLogger().Error("Discord operation failed", "operation", operation, "err", err)
	return err
}

// HandleStoreError executes fn and logs any error as a persistence error.
// The returned error is wrapped with the operation name.
func HandleStoreError(operation string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	log.DatabaseLogger().Error("Store operation failed", "operation", operation, "err", err)
	return fmt.Errorf("store %s: %w", operation, err)
}

// HandleConfigError executes fn and logs any error as a configuration error.
// The returned error carries the operation and source.
func HandleConfigError(operation, source string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	log.ErrorLoggerRaw().Error("Config operation failed", "operation", operation, "source", source, "err", err)
	return fmt.Errorf("config %s %s: %w", operation, source, err)
}
