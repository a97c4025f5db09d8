// Package descriptor writes and reads profile.json, the sidecar record that
// identifies a provisioned profile entry and carries its emulation defaults.
package descriptor

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/mod/semver"

	"profilepm/internal/errs"
)

const (
	FileName      = "profile.json"
	SchemaVersion = "v1.0.0"

	// CreatedLayout is ISO-8601 with microseconds and a zone offset.
	CreatedLayout = "2006-01-02T15:04:05.000000Z07:00"

	importedMarker = "imported"
)

type Mode string

const (
	ModeNoise  Mode = "noise"
	ModeReal   Mode = "real"
	ModeNone   Mode = "none"
	ModeManual Mode = "manual"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeNoise, ModeReal, ModeNone, ModeManual:
		return true
	}
	return false
}

type Navigator struct {
	UserAgent string `json:"userAgent" toml:"user_agent"`
	Platform  string `json:"platform" toml:"platform"`
	Language  string `json:"language" toml:"language"`
}

type ModeSetting struct {
	Mode Mode `json:"mode"`
}

// Descriptor is the on-disk schema of profile.json.
type Descriptor struct {
	SchemaVersion string            `json:"schemaVersion,omitempty"`
	Name          string            `json:"name"`
	Notes         string            `json:"notes"`
	Created       string            `json:"created"`
	Browser       string            `json:"browser"`
	OS            string            `json:"os"`
	Navigator     Navigator         `json:"navigator"`
	Canvas        ModeSetting       `json:"canvas"`
	WebGL         ModeSetting       `json:"webgl"`
	Timezone      ModeSetting       `json:"timezone"`
	Location      ModeSetting       `json:"location"`
	Proxy         ModeSetting       `json:"proxy"`
	Extensions    []json.RawMessage `json:"extensions"`
	Cookies       string            `json:"cookies"`
	Storage       string            `json:"storage"`
}

// CreatedAt parses the created timestamp.
func (d Descriptor) CreatedAt() (time.Time, error) {
	return ParseCreated(d.Created)
}

// Version returns the schema version, treating an absent field as the
// first schema.
func (d Descriptor) Version() string {
	if d.SchemaVersion == "" {
		return SchemaVersion
	}
	return d.SchemaVersion
}

// Validate checks structural validity. dirName, when non-empty, must equal
// the descriptor name.
func (d Descriptor) Validate(dirName string) error {
	v := d.Version()
	if !semver.IsValid(v) {
		return errs.New("DSC_SCHEMA_VERSION", errs.ErrSchema, "invalid schema version %q", v)
	}
	if semver.Major(v) != semver.Major(SchemaVersion) {
		return errs.New("DSC_SCHEMA_VERSION", errs.ErrSchema, "unsupported schema version %q", v)
	}
	if d.Name == "" {
		return errs.New("DSC_SCHEMA_NAME", errs.ErrSchema, "missing name")
	}
	if dirName != "" && d.Name != dirName {
		return errs.New("DSC_SCHEMA_NAME", errs.ErrSchema, "name %q does not match entry %q", d.Name, dirName)
	}
	if _, err := d.CreatedAt(); err != nil {
		return errs.Wrap("DSC_SCHEMA_CREATED", errs.ErrSchema, err)
	}
	for _, m := range []struct {
		field string
		mode  Mode
	}{
		{"canvas", d.Canvas.Mode},
		{"webgl", d.WebGL.Mode},
		{"timezone", d.Timezone.Mode},
		{"location", d.Location.Mode},
		{"proxy", d.Proxy.Mode},
	} {
		if !m.mode.Valid() {
			return errs.New("DSC_SCHEMA_MODE", errs.ErrSchema, "%s mode %q is not one of noise|real|none|manual", m.field, m.mode)
		}
	}
	return nil
}

var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseCreated accepts ISO-8601 timestamps with or without a zone offset.
// Timestamps without an offset are read as local time.
func ParseCreated(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty created timestamp")
	}
	for _, layout := range createdLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable created timestamp %q", s)
}
