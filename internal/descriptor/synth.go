package descriptor

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"

	"profilepm/internal/errs"
	"profilepm/internal/fsutil"
)

// Synthesizer stamps descriptors into finalized profile entries.
type Synthesizer struct {
	Defaults Defaults
	Now      func() time.Time
}

func (s *Synthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Build assembles the descriptor for name without touching disk.
func (s *Synthesizer) Build(name string, overrides Defaults) (Descriptor, error) {
	if err := overrides.ValidateModes(); err != nil {
		return Descriptor{}, errs.Wrap("DSC_OVERRIDE", errs.ErrSchema, err)
	}
	v := s.Defaults.FillEmpty().Merge(overrides)
	if err := v.ValidateModes(); err != nil {
		return Descriptor{}, errs.Wrap("DSC_DEFAULTS", errs.ErrSchema, err)
	}
	return Descriptor{
		SchemaVersion: SchemaVersion,
		Name:          name,
		Notes:         v.Notes,
		Created:       s.now().Format(CreatedLayout),
		Browser:       v.Browser,
		OS:            v.OS,
		Navigator:     v.Navigator,
		Canvas:        ModeSetting{Mode: v.Canvas},
		WebGL:         ModeSetting{Mode: v.WebGL},
		Timezone:      ModeSetting{Mode: v.Timezone},
		Location:      ModeSetting{Mode: v.Location},
		Proxy:         ModeSetting{Mode: v.Proxy},
		Extensions:    []json.RawMessage{},
		Cookies:       importedMarker,
		Storage:       importedMarker,
	}, nil
}

// Write replaces entryDir/profile.json in one step. name must equal the
// entry's directory name.
func (s *Synthesizer) Write(entryDir, name string, overrides Defaults) (Descriptor, error) {
	info, err := os.Stat(entryDir)
	if err != nil {
		return Descriptor{}, errs.Wrap("DSC_ENTRY", errs.ErrIOFailure, err)
	}
	if !info.IsDir() {
		return Descriptor{}, errs.New("DSC_ENTRY", errs.ErrIOFailure, "%q is not a directory", entryDir)
	}
	if base := filepath.Base(entryDir); base != name {
		return Descriptor{}, errs.New("DSC_IDENTITY", errs.ErrSchema, "name %q does not match entry %q", name, base)
	}
	d, err := s.Build(name, overrides)
	if err != nil {
		return Descriptor{}, err
	}
	blob, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return Descriptor{}, errs.Wrap("DSC_ENCODE", errs.ErrIOFailure, err)
	}
	if err := fsutil.AtomicWrite(Path(entryDir), append(blob, '\n'), 0o644); err != nil {
		return Descriptor{}, errs.Wrap("DSC_WRITE", errs.ErrIOFailure, err)
	}
	return d, nil
}

func Path(entryDir string) string {
	return filepath.Join(entryDir, FileName)
}

// Read loads and validates entryDir/profile.json. A missing file surfaces
// as an IOFailure wrapping fs.ErrNotExist; anything unparseable or
// structurally invalid is a SchemaError.
func Read(entryDir string) (Descriptor, error) {
	blob, err := os.ReadFile(Path(entryDir))
	if err != nil {
		return Descriptor{}, errs.Wrap("DSC_READ", errs.ErrIOFailure, err)
	}
	var d Descriptor
	if err := json.Unmarshal(jsonc.ToJSON(blob), &d); err != nil {
		return Descriptor{}, errs.Wrap("DSC_PARSE", errs.ErrSchema, err)
	}
	if err := d.Validate(filepath.Base(entryDir)); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// IsMissing reports whether err came from an absent descriptor file.
func IsMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
