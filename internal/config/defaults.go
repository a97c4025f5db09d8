package config

import "profilepm/internal/descriptor"

const (
	SchemaVersion = 1
)

// DefaultConfig returns a fully-populated v1 config document.
func DefaultConfig() Config {
	return Config{
		Version: SchemaVersion,
		Storage: StorageConfig{
			Root: "~/.profilepm",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Descriptor: descriptor.StandardDefaults(),
	}
}
