// Package errs holds the failure kinds shared by the provisioning pipeline.
//
// Errors keep the CODE: detail message convention used across the repo and
// wrap one of the sentinels below so callers can branch with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrInstallNotFound    = errors.New("install not found")
	ErrSourceNotFound     = errors.New("source not found")
	ErrUnsafeArchiveEntry = errors.New("unsafe archive entry")
	ErrNameCollision      = errors.New("name collision")
	ErrIOFailure          = errors.New("io failure")
	ErrSchema             = errors.New("schema error")
	ErrStoreNotFound      = errors.New("store not found")
	ErrInvalidName        = errors.New("invalid name")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInstallNotFound, "InstallNotFound"},
	{ErrSourceNotFound, "SourceNotFound"},
	{ErrUnsafeArchiveEntry, "UnsafeArchiveEntry"},
	{ErrNameCollision, "NameCollision"},
	{ErrSchema, "SchemaError"},
	{ErrStoreNotFound, "StoreNotFound"},
	{ErrInvalidName, "InvalidName"},
	{ErrIOFailure, "IOFailure"},
}

// Wrap returns "code: kind: err", or "code: kind" when err is nil.
func Wrap(code string, kind error, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", code, kind)
	}
	return fmt.Errorf("%s: %w: %w", code, kind, err)
}

// New returns "code: kind: detail".
func New(code string, kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", code, kind, fmt.Sprintf(format, args...))
}

// KindOf names the first failure kind err wraps, or "" for unclassified errors.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
