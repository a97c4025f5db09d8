package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilepm/internal/descriptor"
	"profilepm/internal/errs"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func addEntry(t *testing.T, storeRoot, name string, created time.Time) {
	t.Helper()
	dir := filepath.Join(storeRoot, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	synth := &descriptor.Synthesizer{Defaults: descriptor.StandardDefaults(), Now: func() time.Time { return created }}
	_, err := synth.Write(dir, name, descriptor.Defaults{})
	require.NoError(t, err)
}

func names(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestListOrdersByCreatedThenName(t *testing.T) {
	root := t.TempDir()
	addEntry(t, root, "charlie", base.Add(2*time.Hour))
	addEntry(t, root, "bravo", base)
	addEntry(t, root, "alpha", base)
	addEntry(t, root, "delta", base.Add(-time.Hour))

	entries, skipped, err := List(root)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, []string{"delta", "alpha", "bravo", "charlie"}, names(entries))
	assert.True(t, entries[0].Created.Equal(base.Add(-time.Hour)))
	assert.Equal(t, filepath.Join(root, "delta"), entries[0].Path)
	assert.Equal(t, "delta", entries[0].Descriptor.Name)
}

func TestListEmptyStore(t *testing.T) {
	entries, skipped, err := List(t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	assert.Empty(t, skipped)
}

func TestListMissingStore(t *testing.T) {
	_, _, err := List(filepath.Join(t.TempDir(), "profiles"))
	assert.ErrorIs(t, err, errs.ErrStoreNotFound)
}

func TestListStoreIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, _, err := List(path)
	assert.ErrorIs(t, err, errs.ErrIOFailure)
}

func TestListSkipsBrokenEntries(t *testing.T) {
	root := t.TempDir()
	addEntry(t, root, "good", base)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "no-descriptor"), 0o755))

	corrupt := filepath.Join(root, "corrupt")
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, descriptor.FileName), []byte("{not json"), 0o644))

	renamed := filepath.Join(root, "renamed")
	require.NoError(t, os.MkdirAll(renamed, 0o755))
	addEntry(t, root, "original", base)
	blob, err := os.ReadFile(filepath.Join(root, "original", descriptor.FileName))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(renamed, descriptor.FileName), blob, 0o644))
	require.NoError(t, os.RemoveAll(filepath.Join(root, "original")))

	entries, skipped, err := List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, names(entries))

	reasons := map[string]Skipped{}
	for _, s := range skipped {
		reasons[s.Name] = s
	}
	require.Len(t, reasons, 3)
	assert.Equal(t, "missing profile.json", reasons["no-descriptor"].Reason)
	assert.Equal(t, "SchemaError", reasons["corrupt"].Kind)
	assert.Equal(t, "SchemaError", reasons["renamed"].Kind)
}

func TestListIgnoresHiddenDirsAndFiles(t *testing.T) {
	root := t.TempDir()
	addEntry(t, root, "visible", base)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".staging", "abc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	entries, skipped, err := List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"visible"}, names(entries))
	assert.Empty(t, skipped)
}

func TestListReadsLegacyDescriptor(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "legacy")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	legacy := `{
  "name": "legacy",
  "notes": "Imported profile",
  "created": "2023-11-02T08:15:30.123456",
  "browser": "mimic",
  "os": "windows",
  "navigator": {"userAgent": "UA", "platform": "Win32", "language": "en-US"},
  "canvas": {"mode": "noise"},
  "webgl": {"mode": "noise"},
  "timezone": {"mode": "real"},
  "location": {"mode": "real"},
  "proxy": {"mode": "none"},
  "extensions": [],
  "cookies": "imported",
  "storage": "imported",
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, descriptor.FileName), []byte(legacy), 0o644))

	entries, skipped, err := List(root)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, entries, 1)
	want := time.Date(2023, 11, 2, 8, 15, 30, 123456000, time.Local)
	assert.True(t, entries[0].Created.Equal(want), "created = %v", entries[0].Created)
}
