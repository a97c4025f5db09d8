package app

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"profilepm/internal/audit"
	"profilepm/internal/config"
	"profilepm/internal/descriptor"
	"profilepm/internal/doctor"
	"profilepm/internal/errs"
	"profilepm/internal/index"
	"profilepm/internal/ingest"
	"profilepm/internal/locator"
	"profilepm/internal/logging"
	storepkg "profilepm/internal/store"
)

// EnvInstallPath overrides the install location when --install-path is unset.
const EnvInstallPath = "PROFILEPM_INSTALL_PATH"

type Options struct {
	ConfigPath  string
	InstallPath string
	// DefaultPaths replaces the platform candidates; tests use it to keep
	// the real machine out of the search list.
	DefaultPaths []string
	Now          func() time.Time
	LogLevel     string
	LogFormat    string
	LogOut       io.Writer
}

type Service struct {
	ConfigPath string
	Config     config.Config
	StateRoot  string

	Audit       *audit.Logger
	Log         zerolog.Logger
	Ingestor    *ingest.Service
	Synthesizer *descriptor.Synthesizer
	Doctor      *doctor.Service

	installPath  string
	defaultPaths []string
}

func New(opts Options) (*Service, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.Ensure(configPath)
	if err != nil {
		return nil, err
	}
	stateRoot, err := config.ResolveStorageRoot(cfg)
	if err != nil {
		return nil, err
	}
	if err := storepkg.EnsureLayout(stateRoot); err != nil {
		return nil, errs.Wrap("APP_STATE", errs.ErrIOFailure, err)
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if opts.LogLevel != "" {
		logCfg.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		logCfg.Format = opts.LogFormat
	}
	log := logging.New(logCfg, opts.LogOut)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	auditLog := audit.New(storepkg.AuditPath(stateRoot), now)
	s := &Service{
		ConfigPath:   configPath,
		Config:       cfg,
		StateRoot:    stateRoot,
		Audit:        auditLog,
		Log:          log,
		Ingestor:     &ingest.Service{Now: now, Audit: auditLog, Log: log},
		Synthesizer:  &descriptor.Synthesizer{Defaults: cfg.Descriptor, Now: now},
		installPath:  opts.InstallPath,
		defaultPaths: opts.DefaultPaths,
	}
	s.Doctor = &doctor.Service{ConfigPath: configPath}
	return s, nil
}

func (s *Service) SaveConfig() error {
	return config.Save(s.ConfigPath, s.Config)
}

// candidates orders the install search: override, configured candidates,
// then platform defaults.
func (s *Service) candidates() locator.Candidates {
	override := strings.TrimSpace(s.installPath)
	if override == "" {
		override = strings.TrimSpace(os.Getenv(EnvInstallPath))
	}
	c := locator.Candidates{Override: expand(override)}
	for _, p := range s.Config.Locator.Candidates {
		c.Paths = append(c.Paths, expand(p))
	}
	defaults := s.defaultPaths
	if defaults == nil {
		home, _ := os.UserHomeDir()
		defaults = locator.DefaultPaths(home, runtime.GOOS, os.Getenv)
	}
	c.Paths = append(c.Paths, defaults...)
	return c
}

func expand(p string) string {
	if p == "" {
		return ""
	}
	out, err := config.ExpandPath(p)
	if err != nil {
		return p
	}
	return out
}

func (s *Service) Locate() (locator.Result, error) {
	res, err := locator.Locate(s.candidates())
	if err != nil {
		return locator.Result{}, err
	}
	if res.Created {
		s.Log.Info().Str("store", res.StoreRoot).Msg("created profile store")
	}
	return res, nil
}

type ImportRequest struct {
	Source    string
	Name      string
	Overrides descriptor.Defaults
}

type ImportResult struct {
	ingest.Result
	StoreRoot  string                `json:"storeRoot"`
	Descriptor descriptor.Descriptor `json:"descriptor"`
}

// Import provisions one profile: locate the store, ingest the source,
// then write its descriptor. An entry whose descriptor cannot be written
// is removed again.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	if err := req.Overrides.ValidateModes(); err != nil {
		return ImportResult{}, errs.Wrap("APP_IMPORT_OVERRIDE", errs.ErrSchema, err)
	}
	loc, err := s.Locate()
	if err != nil {
		_ = s.Audit.Failure("import", "locate", req.Name, err)
		return ImportResult{}, err
	}
	res, err := s.Ingestor.Import(ctx, ingest.Request{StoreRoot: loc.StoreRoot, Source: req.Source, Name: req.Name})
	if err != nil {
		return ImportResult{}, err
	}
	d, err := s.Synthesizer.Write(res.Path, res.Name, req.Overrides)
	if err != nil {
		if rmErr := os.RemoveAll(res.Path); rmErr != nil {
			err = errors.Join(err, errs.Wrap("APP_IMPORT_ROLLBACK", errs.ErrIOFailure, rmErr))
		}
		_ = s.Audit.Failure("import", "describe", res.Name, err)
		return ImportResult{}, err
	}
	_ = s.Audit.Log(audit.Event{Operation: "import", Phase: "describe", Status: "ok", Entry: res.Name})
	s.Log.Info().Str("entry", res.Name).Str("format", res.Format).Int("files", res.Stats.Files).Msg("profile imported")
	return ImportResult{Result: res, StoreRoot: loc.StoreRoot, Descriptor: d}, nil
}

type Listing struct {
	StoreRoot string          `json:"storeRoot"`
	Entries   []index.Entry   `json:"entries"`
	Skipped   []index.Skipped `json:"skipped"`
}

func (s *Service) List(ctx context.Context) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	loc, err := s.Locate()
	if err != nil {
		_ = s.Audit.Failure("list", "locate", "", err)
		return Listing{}, err
	}
	entries, skipped, err := index.List(loc.StoreRoot)
	if err != nil {
		_ = s.Audit.Failure("list", "index", "", err)
		return Listing{}, err
	}
	for _, sk := range skipped {
		s.Log.Warn().Str("entry", sk.Name).Str("reason", sk.Reason).Msg("skipping entry")
	}
	_ = s.Audit.Log(audit.Event{
		Operation: "list",
		Phase:     "index",
		Status:    "ok",
		Fields: map[string]string{
			"store":   loc.StoreRoot,
			"entries": strconv.Itoa(len(entries)),
			"skipped": strconv.Itoa(len(skipped)),
		},
	})
	return Listing{StoreRoot: loc.StoreRoot, Entries: entries, Skipped: skipped}, nil
}

func (s *Service) DoctorRun(ctx context.Context) doctor.Report {
	s.Doctor.Candidates = s.candidates()
	return s.Doctor.Run(ctx)
}

func (s *Service) CandidateAdd(path string) error {
	if err := config.AddCandidate(&s.Config, path); err != nil {
		return err
	}
	return s.SaveConfig()
}

func (s *Service) CandidateRemove(path string) error {
	if err := config.RemoveCandidate(&s.Config, path); err != nil {
		return err
	}
	return s.SaveConfig()
}

// Candidates returns the full search order for the current settings.
func (s *Service) Candidates() []string {
	return s.candidates().Ordered()
}
