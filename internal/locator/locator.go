// Package locator finds the host application's install and derives its
// profile store.
package locator

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"profilepm/internal/errs"
)

// StoreDirName is the store's fixed location beneath an install root.
const StoreDirName = "profiles"

// Candidates is the ordered list of install roots to search. Override, when
// set, is checked before Paths.
type Candidates struct {
	Override string
	Paths    []string
}

// Ordered returns the search order with blanks and repeats removed.
func (c Candidates) Ordered() []string {
	out := make([]string, 0, len(c.Paths)+1)
	seen := map[string]struct{}{}
	for _, p := range append([]string{c.Override}, c.Paths...) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := filepath.Clean(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

type Result struct {
	InstallRoot string `json:"installRoot"`
	StoreRoot   string `json:"storeRoot"`
	Created     bool   `json:"created"`
}

// Find returns the first candidate that exists, without touching the store.
func Find(c Candidates) (string, error) {
	ordered := c.Ordered()
	for _, p := range ordered {
		if _, err := os.Stat(p); err == nil {
			return filepath.Clean(p), nil
		}
	}
	return "", errs.New("LOC_INSTALL", errs.ErrInstallNotFound, "checked %d location(s): %s", len(ordered), strings.Join(ordered, ", "))
}

// StoreRoot is the profile store path for an install root.
func StoreRoot(installRoot string) string {
	return filepath.Join(installRoot, StoreDirName)
}

// Locate resolves the install and makes sure its profile store exists.
// Calling it again with an unchanged filesystem returns the same result
// with Created false.
func Locate(c Candidates) (Result, error) {
	install, err := Find(c)
	if err != nil {
		return Result{}, err
	}
	store := StoreRoot(install)
	res := Result{InstallRoot: install, StoreRoot: store}
	info, err := os.Stat(store)
	switch {
	case err == nil:
		if !info.IsDir() {
			return Result{}, errs.New("LOC_STORE", errs.ErrIOFailure, "%q exists and is not a directory", store)
		}
		return res, nil
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(store, 0o755); err != nil {
			return Result{}, errs.Wrap("LOC_STORE_CREATE", errs.ErrIOFailure, err)
		}
		res.Created = true
		return res, nil
	default:
		return Result{}, errs.Wrap("LOC_STORE", errs.ErrIOFailure, err)
	}
}
