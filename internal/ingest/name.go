package ingest

import (
	"fmt"
	"strings"
	"time"

	"profilepm/internal/errs"
	"profilepm/internal/store"
)

const (
	AutoNamePrefix = "imported_profile_"
	autoNameLayout = "20060102_150405"

	// maxAutoSuffix bounds disambiguation of auto-generated names.
	maxAutoSuffix = 999
)

// AutoName is the generated name for an import started at now.
func AutoName(now time.Time) string {
	return AutoNamePrefix + now.Format(autoNameLayout)
}

// candidateName is the attempt-th choice for an auto-generated base name:
// base, base_2, base_3, ...
func candidateName(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, attempt)
}

// ValidateName checks a caller-supplied entry name. Names are used
// verbatim, so anything that is not a single path segment is refused.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errs.New("ING_NAME", errs.ErrInvalidName, "profile name is empty")
	case name == "." || name == "..":
		return errs.New("ING_NAME", errs.ErrInvalidName, "invalid profile name %q", name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return errs.New("ING_NAME", errs.ErrInvalidName, "profile name %q must not contain path separators", name)
	case store.IsHidden(name):
		return errs.New("ING_NAME", errs.ErrInvalidName, "profile name %q must not start with a dot", name)
	}
	return nil
}
