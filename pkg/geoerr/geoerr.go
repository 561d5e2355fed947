// Package geoerr defines the error taxonomy shared by the rendering engines
// and the public layer API.
package geoerr

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned by classifiers that were given too few
// values to build any class.
var ErrInsufficientData = errors.New("insufficient data for classification")

// ConfigError reports a malformed colorizer, symbol or layer definition.
// It is raised at the call that introduced the bad configuration, never
// deferred to render time.
type ConfigError struct {
	What string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.What, e.Err)
	}
	return "configuration: " + e.What
}

func (e *ConfigError) Unwrap() error { return e.Err }

func Config(format string, args ...any) error {
	return &ConfigError{What: fmt.Sprintf(format, args...)}
}

// AttributeNotFoundError reports a symbology rule referencing an attribute
// the feature does not carry. Surfaced at evaluation time so data/symbology
// mismatches show up early instead of silently matching nothing.
type AttributeNotFoundError struct {
	Attribute string
}

func (e *AttributeNotFoundError) Error() string {
	return fmt.Sprintf("attribute %q not found", e.Attribute)
}
