package config

import (
	"fmt"
	"strings"
)

func AddCandidate(cfg *Config, path string) error {
	if cfg == nil {
		return fmt.Errorf("DOC_CONFIG_LOCATOR: nil config")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("DOC_CONFIG_LOCATOR: candidate path is required")
	}
	for _, existing := range cfg.Locator.Candidates {
		if existing == path {
			return fmt.Errorf("DOC_CONFIG_LOCATOR: candidate %q already exists", path)
		}
	}
	cfg.Locator.Candidates = append(cfg.Locator.Candidates, path)
	*cfg = Normalize(*cfg)
	return Validate(*cfg)
}

func RemoveCandidate(cfg *Config, path string) error {
	if cfg == nil {
		return fmt.Errorf("DOC_CONFIG_LOCATOR: nil config")
	}
	for i, c := range cfg.Locator.Candidates {
		if c == path {
			cfg.Locator.Candidates = append(cfg.Locator.Candidates[:i], cfg.Locator.Candidates[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("DOC_CONFIG_LOCATOR: candidate %q not found", path)
}
