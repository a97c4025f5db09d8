// Package index enumerates provisioned profile entries by reading their
// descriptors back. It never writes to the store.
package index

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"time"

	"profilepm/internal/descriptor"
	"profilepm/internal/errs"
	"profilepm/internal/store"
)

type Entry struct {
	Name       string                `json:"name"`
	Path       string                `json:"path"`
	Created    time.Time             `json:"created"`
	Descriptor descriptor.Descriptor `json:"-"`
}

// Skipped is a store subdirectory that is not a readable entry.
type Skipped struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Kind   string `json:"kind,omitempty"`
}

// List returns the entries of storeRoot ordered by creation time, oldest
// first, with ties broken by name. Subdirectories without a valid
// descriptor are reported in the second return value instead of failing
// the listing.
func List(storeRoot string) ([]Entry, []Skipped, error) {
	info, err := os.Stat(storeRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, errs.New("IDX_STORE", errs.ErrStoreNotFound, "%q does not exist", storeRoot)
	}
	if err != nil {
		return nil, nil, errs.Wrap("IDX_STORE", errs.ErrIOFailure, err)
	}
	if !info.IsDir() {
		return nil, nil, errs.New("IDX_STORE", errs.ErrIOFailure, "%q is not a directory", storeRoot)
	}
	dirents, err := os.ReadDir(storeRoot)
	if err != nil {
		return nil, nil, errs.Wrap("IDX_READ", errs.ErrIOFailure, err)
	}

	entries := []Entry{}
	skipped := []Skipped{}
	for _, de := range dirents {
		name := de.Name()
		if !de.IsDir() || store.IsHidden(name) {
			continue
		}
		path := store.EntryPath(storeRoot, name)
		d, err := descriptor.Read(path)
		if err != nil {
			skipped = append(skipped, skip(name, path, err))
			continue
		}
		created, err := d.CreatedAt()
		if err != nil {
			skipped = append(skipped, skip(name, path, errs.Wrap("IDX_CREATED", errs.ErrSchema, err)))
			continue
		}
		entries = append(entries, Entry{Name: name, Path: path, Created: created, Descriptor: d})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Created.Equal(entries[j].Created) {
			return entries[i].Created.Before(entries[j].Created)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, skipped, nil
}

func skip(name, path string, err error) Skipped {
	if descriptor.IsMissing(err) {
		return Skipped{Name: name, Path: path, Reason: "missing " + descriptor.FileName, Kind: errs.KindOf(err)}
	}
	return Skipped{Name: name, Path: path, Reason: err.Error(), Kind: errs.KindOf(err)}
}
