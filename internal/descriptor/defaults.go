package descriptor

import "strings"

// Defaults are the values stamped into every new descriptor. The same shape
// carries per-import overrides: any non-empty field replaces the default.
type Defaults struct {
	Notes     string    `toml:"notes" json:"notes,omitempty"`
	Browser   string    `toml:"browser" json:"browser,omitempty"`
	OS        string    `toml:"os" json:"os,omitempty"`
	Navigator Navigator `toml:"navigator" json:"navigator"`
	Canvas    Mode      `toml:"canvas" json:"canvas,omitempty"`
	WebGL     Mode      `toml:"webgl" json:"webgl,omitempty"`
	Timezone  Mode      `toml:"timezone" json:"timezone,omitempty"`
	Location  Mode      `toml:"location" json:"location,omitempty"`
	Proxy     Mode      `toml:"proxy" json:"proxy,omitempty"`
}

func StandardDefaults() Defaults {
	return Defaults{
		Notes:   "Imported profile",
		Browser: "mimic",
		OS:      "windows",
		Navigator: Navigator{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			Platform:  "Win32",
			Language:  "en-US",
		},
		Canvas:   ModeNoise,
		WebGL:    ModeNoise,
		Timezone: ModeReal,
		Location: ModeReal,
		Proxy:    ModeNone,
	}
}

// Merge returns d with every non-empty field of o applied on top.
func (d Defaults) Merge(o Defaults) Defaults {
	pick := func(base, over string) string {
		if strings.TrimSpace(over) != "" {
			return over
		}
		return base
	}
	pickMode := func(base, over Mode) Mode {
		return Mode(pick(string(base), string(over)))
	}
	return Defaults{
		Notes:   pick(d.Notes, o.Notes),
		Browser: pick(d.Browser, o.Browser),
		OS:      pick(d.OS, o.OS),
		Navigator: Navigator{
			UserAgent: pick(d.Navigator.UserAgent, o.Navigator.UserAgent),
			Platform:  pick(d.Navigator.Platform, o.Navigator.Platform),
			Language:  pick(d.Navigator.Language, o.Navigator.Language),
		},
		Canvas:   pickMode(d.Canvas, o.Canvas),
		WebGL:    pickMode(d.WebGL, o.WebGL),
		Timezone: pickMode(d.Timezone, o.Timezone),
		Location: pickMode(d.Location, o.Location),
		Proxy:    pickMode(d.Proxy, o.Proxy),
	}
}

// FillEmpty returns d with empty fields taken from StandardDefaults.
func (d Defaults) FillEmpty() Defaults {
	return StandardDefaults().Merge(d)
}

// ValidateModes reports the first mode that is set but unknown. Empty
// modes are accepted so partial overrides validate.
func (d Defaults) ValidateModes() error {
	for _, m := range []struct {
		field string
		mode  Mode
	}{
		{"canvas", d.Canvas},
		{"webgl", d.WebGL},
		{"timezone", d.Timezone},
		{"location", d.Location},
		{"proxy", d.Proxy},
	} {
		if m.mode != "" && !m.mode.Valid() {
			return &InvalidModeError{Field: m.field, Mode: m.mode}
		}
	}
	return nil
}

type InvalidModeError struct {
	Field string
	Mode  Mode
}

func (e *InvalidModeError) Error() string {
	return e.Field + " mode " + `"` + string(e.Mode) + `"` + " is not one of noise|real|none|manual"
}
