package locator

import (
	"path/filepath"
)

const appDirName = "Multilogin"

// DefaultPaths returns the conventional install roots in search order. All
// layouts are checked on every platform because installs are sometimes
// copied between machines; the per-user Windows location from LOCALAPPDATA
// leads when it is set.
func DefaultPaths(home, goos string, getenv func(string) string) []string {
	if home == "" {
		home = "."
	}
	var out []string
	if goos == "windows" && getenv != nil {
		if v := getenv("LOCALAPPDATA"); v != "" {
			out = append(out, filepath.Join(v, appDirName))
		}
	}
	return append(out,
		filepath.Join(home, "AppData", "Local", appDirName),
		filepath.Join(home, "Library", "Application Support", appDirName),
		filepath.Join(home, ".multilogin"),
		"C:/Program Files/"+appDirName,
		"/opt/multilogin",
	)
}
