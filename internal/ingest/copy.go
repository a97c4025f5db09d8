package ingest

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"profilepm/internal/archive"
	"profilepm/internal/errs"
)

// copyTree copies the directory src into the existing directory dest,
// preserving structure and permission bits. Symlinks that stay inside src
// are recreated; the rest are reported back as skipped.
func copyTree(ctx context.Context, src, dest string) (archive.Stats, []string, error) {
	var stats archive.Stats
	var skipped []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return errs.Wrap("ING_COPY_WALK", errs.ErrIOFailure, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errs.Wrap("ING_COPY_REL", errs.ErrIOFailure, err)
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dest, rel)
		info, err := d.Info()
		if err != nil {
			return errs.Wrap("ING_COPY_STAT", errs.ErrIOFailure, err)
		}
		mode := info.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, mode.Perm()|0o700); err != nil {
				return errs.Wrap("ING_COPY_MKDIR", errs.ErrIOFailure, err)
			}
			stats.Dirs++
		case mode&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return errs.Wrap("ING_COPY_LINK", errs.ErrIOFailure, err)
			}
			if !linkStaysInside(src, path, link) {
				skipped = append(skipped, rel)
				stats.Skipped++
				return nil
			}
			if err := os.Symlink(link, target); err != nil {
				return errs.Wrap("ING_COPY_LINK", errs.ErrIOFailure, err)
			}
			stats.Links++
		case mode.IsRegular():
			n, err := copyFile(path, target, mode.Perm())
			if err != nil {
				return errs.Wrap("ING_COPY_FILE", errs.ErrIOFailure, err)
			}
			stats.Files++
			stats.Bytes += n
		default:
			skipped = append(skipped, rel)
			stats.Skipped++
		}
		return nil
	})
	if err != nil {
		return stats, skipped, err
	}
	pruned, err := pruneEscapingLinks(dest)
	for _, rel := range pruned {
		skipped = append(skipped, rel)
		stats.Links--
		stats.Skipped++
	}
	return stats, skipped, err
}

// pruneEscapingLinks removes copied symlinks that leave dest once resolved
// against the copied tree. linkStaysInside judges each link on its own text,
// which a chain through another link can defeat. Removing a link can change
// how others resolve, so passes repeat until nothing changes.
func pruneEscapingLinks(dest string) ([]string, error) {
	var pruned []string
	for {
		var escaping []string
		err := filepath.WalkDir(dest, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return errs.Wrap("ING_COPY_VERIFY", errs.ErrIOFailure, walkErr)
			}
			if d.Type()&fs.ModeSymlink == 0 {
				return nil
			}
			escapes, err := archive.LinkEscapes(dest, path)
			if err != nil {
				return errs.Wrap("ING_COPY_VERIFY", errs.ErrIOFailure, err)
			}
			if escapes {
				escaping = append(escaping, path)
			}
			return nil
		})
		if err != nil {
			return pruned, err
		}
		if len(escaping) == 0 {
			return pruned, nil
		}
		for _, path := range escaping {
			if err := os.Remove(path); err != nil {
				return pruned, errs.Wrap("ING_COPY_VERIFY", errs.ErrIOFailure, err)
			}
			rel, _ := filepath.Rel(dest, path)
			pruned = append(pruned, rel)
		}
	}
}

func linkStaysInside(root, linkPath, link string) bool {
	if filepath.IsAbs(link) {
		return false
	}
	resolved := filepath.Join(filepath.Dir(linkPath), link)
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyFile(src, dest string, perm fs.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm|0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
