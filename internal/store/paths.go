package store

import (
	"os"
	"path/filepath"
	"strings"
)

// StagingDirName holds in-flight imports. It lives inside the profile store
// so the final rename never crosses a filesystem.
const StagingDirName = ".staging"

func StagingRoot(storeRoot string) string {
	return filepath.Join(storeRoot, StagingDirName)
}

func EntryPath(storeRoot, name string) string {
	return filepath.Join(storeRoot, name)
}

// IsHidden reports names that are never profile entries.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// AuditPath is the audit log inside profilepm's own state root.
func AuditPath(stateRoot string) string {
	return filepath.Join(stateRoot, "audit.log")
}

// EnsureLayout creates profilepm's state root.
func EnsureLayout(stateRoot string) error {
	return os.MkdirAll(stateRoot, 0o755)
}
