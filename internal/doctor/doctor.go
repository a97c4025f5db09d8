package doctor

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"profilepm/internal/config"
	"profilepm/internal/index"
	"profilepm/internal/locator"
	"profilepm/internal/store"
)

type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Report struct {
	Healthy     bool      `json:"healthy"`
	Findings    []Finding `json:"findings"`
	InstallRoot string    `json:"installRoot,omitempty"`
	StoreRoot   string    `json:"storeRoot,omitempty"`
	Entries     int       `json:"entries"`
}

// Service inspects the config and the located store without changing
// either; a missing store is reported, not created.
type Service struct {
	ConfigPath string
	Candidates locator.Candidates
}

func (s *Service) Run(ctx context.Context) Report {
	findings := []Finding{}
	if _, err := os.Stat(s.ConfigPath); err != nil {
		findings = append(findings, Finding{Code: "DOC_CONFIG_MISSING", Level: "error", Message: err.Error()})
	} else if _, err := config.Load(s.ConfigPath); err != nil {
		findings = append(findings, Finding{Code: "DOC_CONFIG_INVALID", Level: "error", Message: err.Error()})
	}

	report := Report{}
	install, err := locator.Find(s.Candidates)
	if err != nil {
		findings = append(findings, Finding{Code: "DOC_INSTALL_NOT_FOUND", Level: "error", Message: err.Error()})
		return finish(report, findings)
	}
	report.InstallRoot = install
	report.StoreRoot = locator.StoreRoot(install)

	info, err := os.Stat(report.StoreRoot)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		findings = append(findings, Finding{Code: "DOC_STORE_MISSING", Level: "warn", Message: report.StoreRoot + " does not exist yet; it is created on first import"})
		return finish(report, findings)
	case err != nil:
		findings = append(findings, Finding{Code: "DOC_STORE_INVALID", Level: "error", Message: err.Error()})
		return finish(report, findings)
	case !info.IsDir():
		findings = append(findings, Finding{Code: "DOC_STORE_INVALID", Level: "error", Message: report.StoreRoot + " is not a directory"})
		return finish(report, findings)
	}

	if err := ctx.Err(); err != nil {
		findings = append(findings, Finding{Code: "DOC_CANCELLED", Level: "error", Message: err.Error()})
		return finish(report, findings)
	}

	if leftovers, err := os.ReadDir(store.StagingRoot(report.StoreRoot)); err == nil && len(leftovers) > 0 {
		for _, l := range leftovers {
			findings = append(findings, Finding{
				Code:    "DOC_STAGING_LEFTOVER",
				Level:   "warn",
				Message: "interrupted import left " + store.StagingDirName + "/" + l.Name() + "; safe to delete",
			})
		}
	}

	entries, skipped, err := index.List(report.StoreRoot)
	if err != nil {
		findings = append(findings, Finding{Code: "DOC_STORE_INVALID", Level: "error", Message: err.Error()})
		return finish(report, findings)
	}
	report.Entries = len(entries)
	for _, sk := range skipped {
		findings = append(findings, Finding{Code: "DOC_ENTRY_INVALID", Level: "warn", Message: sk.Name + ": " + sk.Reason})
	}
	return finish(report, findings)
}

func finish(report Report, findings []Finding) Report {
	healthy := true
	for _, f := range findings {
		if f.Level == "error" {
			healthy = false
			break
		}
	}
	report.Healthy = healthy
	report.Findings = findings
	return report
}
