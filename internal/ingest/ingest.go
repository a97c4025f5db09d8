// Package ingest materialises a source bundle as a new entry in a profile
// store. Content is staged under the store's .staging directory and moved
// into place with a single rename, so a failed import never leaves a
// partially populated entry behind.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profilepm/internal/archive"
	"profilepm/internal/audit"
	"profilepm/internal/errs"
	"profilepm/internal/store"
)

type Service struct {
	Now   func() time.Time
	Audit *audit.Logger
	Log   zerolog.Logger
}

type Request struct {
	StoreRoot string
	Source    string
	// Name is used verbatim when set; otherwise one is generated.
	Name string
}

type Result struct {
	Name    string        `json:"name"`
	Path    string        `json:"path"`
	Source  string        `json:"source"`
	Format  string        `json:"format"`
	Digest  string        `json:"digest,omitempty"`
	Stats   archive.Stats `json:"stats"`
	Skipped []string      `json:"skipped,omitempty"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Import creates one entry under req.StoreRoot from req.Source.
//
// Supplied names that already exist fail with ErrNameCollision. Generated
// names are disambiguated with a numeric suffix instead. Either way the
// name is claimed with an exclusive mkdir, so concurrent imports never
// share an entry.
func (s *Service) Import(ctx context.Context, req Request) (Result, error) {
	res, err := s.doImport(ctx, req)
	if err != nil {
		_ = s.Audit.Failure("import", "ingest", res.Name, err)
		return Result{}, err
	}
	_ = s.Audit.Log(audit.Event{
		Operation: "import",
		Phase:     "commit",
		Status:    "ok",
		Entry:     res.Name,
		Fields: map[string]string{
			"source": res.Source,
			"format": res.Format,
			"digest": res.Digest,
			"files":  fmt.Sprintf("%d", res.Stats.Files),
		},
	})
	return res, nil
}

func (s *Service) doImport(ctx context.Context, req Request) (Result, error) {
	src, info, err := statSource(req.Source)
	if err != nil {
		return Result{}, err
	}
	res := Result{Source: src}

	var format archive.Format
	switch {
	case info.IsDir():
		res.Format = "directory"
	case info.Mode().IsRegular():
		f, ok := archive.Detect(src)
		if !ok {
			return res, errs.New("ING_SOURCE_KIND", errs.ErrIOFailure, "%q is neither a directory nor a supported archive", src)
		}
		format = f
		res.Format = f.String()
	default:
		return res, errs.New("ING_SOURCE_KIND", errs.ErrIOFailure, "%q is not a regular file or directory", src)
	}

	if err := checkStore(req.StoreRoot); err != nil {
		return res, err
	}
	if info.IsDir() {
		if err := checkNotAncestor(src, req.StoreRoot); err != nil {
			return res, err
		}
	}

	if req.Name != "" {
		if err := ValidateName(req.Name); err != nil {
			return res, err
		}
	}

	if format != archive.FormatUnknown {
		digest, err := archive.Digest(src)
		if err != nil {
			return res, err
		}
		res.Digest = digest
	}

	name, final, err := s.reserve(req.StoreRoot, req.Name)
	if err != nil {
		return res, err
	}
	res.Name = name
	committed := false
	defer func() {
		if !committed {
			// Only ever the empty reservation; a non-empty entry means
			// someone else wrote into it and it is left alone.
			_ = os.Remove(final)
		}
	}()

	stage, err := s.newStage(req.StoreRoot)
	if err != nil {
		return res, err
	}
	defer func() {
		_ = os.RemoveAll(stage)
		_ = os.Remove(store.StagingRoot(req.StoreRoot))
	}()

	s.Log.Debug().Str("entry", name).Str("source", src).Str("format", res.Format).Str("stage", stage).Msg("staging import")
	if format == archive.FormatUnknown {
		res.Stats, res.Skipped, err = copyTree(ctx, src, stage)
		for _, rel := range res.Skipped {
			s.Log.Warn().Str("entry", name).Str("path", rel).Msg("skipped link or special file outside the bundle")
		}
	} else {
		res.Stats, err = archive.Extract(ctx, src, stage, format)
	}
	if err != nil {
		return res, err
	}

	if err := commit(stage, final); err != nil {
		return res, err
	}
	committed = true
	res.Path = final
	return res, nil
}

func statSource(source string) (string, fs.FileInfo, error) {
	if source == "" {
		return "", nil, errs.New("ING_SOURCE", errs.ErrSourceNotFound, "no source given")
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", nil, errs.Wrap("ING_SOURCE", errs.ErrIOFailure, err)
	}
	// Resolve a symlinked source so directory walks see real content.
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, errs.New("ING_SOURCE", errs.ErrSourceNotFound, "%q does not exist", source)
	}
	if err != nil {
		return "", nil, errs.Wrap("ING_SOURCE", errs.ErrIOFailure, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", nil, errs.Wrap("ING_SOURCE", errs.ErrIOFailure, err)
	}
	return resolved, info, nil
}

func checkStore(root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return errs.New("ING_STORE", errs.ErrStoreNotFound, "%q does not exist", root)
	}
	if err != nil {
		return errs.Wrap("ING_STORE", errs.ErrIOFailure, err)
	}
	if !info.IsDir() {
		return errs.New("ING_STORE", errs.ErrIOFailure, "%q is not a directory", root)
	}
	return nil
}

// checkNotAncestor refuses a directory source that is the store or holds
// it; staging happens inside the store, so the copy would walk into its
// own output.
func checkNotAncestor(src, storeRoot string) error {
	abs, err := filepath.Abs(storeRoot)
	if err != nil {
		return errs.Wrap("ING_SOURCE", errs.ErrIOFailure, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(src, abs)
	if err != nil {
		return nil
	}
	if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errs.New("ING_SOURCE_CONTAINS_STORE", errs.ErrIOFailure, "%q contains the profile store %q; import a profile directory instead", src, abs)
	}
	return nil
}

// reserve claims an entry directory. The returned directory is empty.
func (s *Service) reserve(storeRoot, name string) (string, string, error) {
	if name != "" {
		final := store.EntryPath(storeRoot, name)
		if err := os.Mkdir(final, 0o755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return "", "", errs.New("ING_RESERVE", errs.ErrNameCollision, "profile %q already exists", name)
			}
			return "", "", errs.Wrap("ING_RESERVE", errs.ErrIOFailure, err)
		}
		return name, final, nil
	}

	base := AutoName(s.now())
	for attempt := 1; attempt <= maxAutoSuffix; attempt++ {
		candidate := candidateName(base, attempt)
		final := store.EntryPath(storeRoot, candidate)
		err := os.Mkdir(final, 0o755)
		if err == nil {
			if attempt > 1 {
				s.Log.Info().Str("base", base).Str("entry", candidate).Msg("generated name taken, using suffix")
			}
			return candidate, final, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", errs.Wrap("ING_RESERVE", errs.ErrIOFailure, err)
		}
	}
	return "", "", errs.New("ING_RESERVE", errs.ErrNameCollision, "no free name for %q after %d attempts", base, maxAutoSuffix)
}

func (s *Service) newStage(storeRoot string) (string, error) {
	root := store.StagingRoot(storeRoot)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", errs.Wrap("ING_STAGE_CREATE", errs.ErrIOFailure, err)
	}
	stage := filepath.Join(root, uuid.NewString())
	if err := os.Mkdir(stage, 0o755); err != nil {
		return "", errs.Wrap("ING_STAGE_CREATE", errs.ErrIOFailure, err)
	}
	return stage, nil
}

// commit moves the staged tree onto the empty reservation. POSIX rename
// replaces an empty directory atomically; Windows refuses, so the
// reservation is dropped first there.
func commit(stage, final string) error {
	if err := os.Rename(stage, final); err == nil {
		return nil
	}
	if err := os.Remove(final); err != nil {
		return errs.Wrap("ING_COMMIT", errs.ErrIOFailure, err)
	}
	if err := os.Rename(stage, final); err != nil {
		return errs.Wrap("ING_COMMIT", errs.ErrIOFailure, err)
	}
	return nil
}
