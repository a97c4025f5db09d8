package config

import (
	"fmt"
)

var allowedLogLevels = map[string]struct{}{
	"trace":    {},
	"debug":    {},
	"info":     {},
	"warn":     {},
	"error":    {},
	"disabled": {},
}

var allowedLogFormats = map[string]struct{}{
	"auto":    {},
	"console": {},
	"json":    {},
}

func Validate(cfg Config) error {
	if cfg.Version != SchemaVersion {
		return fmt.Errorf("DOC_CONFIG_VERSION: unsupported version %d", cfg.Version)
	}
	if cfg.Storage.Root == "" {
		return fmt.Errorf("DOC_CONFIG_STORAGE: missing storage root")
	}
	if cfg.Logging.Level == "" || cfg.Logging.Format == "" {
		return fmt.Errorf("DOC_CONFIG_LOGGING: missing logging level/format")
	}
	if _, ok := allowedLogLevels[cfg.Logging.Level]; !ok {
		return fmt.Errorf("DOC_CONFIG_LOGGING: invalid level %q", cfg.Logging.Level)
	}
	if _, ok := allowedLogFormats[cfg.Logging.Format]; !ok {
		return fmt.Errorf("DOC_CONFIG_LOGGING: invalid format %q", cfg.Logging.Format)
	}

	seen := map[string]struct{}{}
	for _, c := range cfg.Locator.Candidates {
		if c == "" {
			return fmt.Errorf("DOC_CONFIG_LOCATOR: empty candidate path")
		}
		if _, ok := seen[c]; ok {
			return fmt.Errorf("DOC_CONFIG_LOCATOR: duplicate candidate %q", c)
		}
		seen[c] = struct{}{}
	}

	if err := cfg.Descriptor.ValidateModes(); err != nil {
		return fmt.Errorf("DOC_CONFIG_DESCRIPTOR: %w", err)
	}
	return nil
}
