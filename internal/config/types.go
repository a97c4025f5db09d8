package config

import "profilepm/internal/descriptor"

// Config is the frozen v1 global schema.
type Config struct {
	Version    int                 `toml:"version"`
	Storage    StorageConfig       `toml:"storage"`
	Logging    LoggingConfig       `toml:"logging"`
	Locator    LocatorConfig       `toml:"locator"`
	Descriptor descriptor.Defaults `toml:"descriptor"`
}

// StorageConfig locates profilepm's own state (audit log), not the host
// application's profile store.
type StorageConfig struct {
	Root string `toml:"root"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// LocatorConfig lists extra install candidates checked after the
// --install-path override and before the platform defaults.
type LocatorConfig struct {
	Candidates []string `toml:"candidates,omitempty" json:"candidates,omitempty"`
}
