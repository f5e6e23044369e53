package etwmeta

import (
	"errors"
	"fmt"
)

var (
	// ErrManifestParse matches any *ManifestParseError.
	ErrManifestParse = errors.New("failed to parse manifest XML")
	// ErrProviderNotFound matches any *ProviderNotFoundError.
	ErrProviderNotFound = errors.New("provider not found in meta-class hierarchy")
)

// ManifestParseError is returned when manifest XML is not well-formed or lacks
// a mandatory element. No partial model accompanies it.
type ManifestParseError struct {
	// Provider is the provider name when it was read before failing.
	Provider string
	Err      error
}

func (e *ManifestParseError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %v", ErrManifestParse, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrManifestParse, e.Err)
}

func (e *ManifestParseError) Unwrap() error { return e.Err }

func (e *ManifestParseError) Is(target error) bool { return target == ErrManifestParse }

func parseErr(provider string, format string, args ...any) error {
	return &ManifestParseError{Provider: provider, Err: fmt.Errorf(format, args...)}
}

// ProviderNotFoundError is returned by ParseLegacy when no EventTrace subclass
// carries the requested GUID.
type ProviderNotFoundError struct {
	GUID GUID
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProviderNotFound, e.GUID)
}

func (e *ProviderNotFoundError) Is(target error) bool { return target == ErrProviderNotFound }
