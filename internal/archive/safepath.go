package archive

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"profilepm/internal/errs"
)

func unsafeEntry(name, reason string) error {
	return errs.New("ARC_UNSAFE_ENTRY", errs.ErrUnsafeArchiveEntry, "%q %s", name, reason)
}

// SafeJoin resolves an archive entry name to a path strictly inside dest.
// Names are archive-style (slash separated); backslashes are treated as
// separators because zips written on Windows use them.
func SafeJoin(dest, name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if slashed == "" {
		return "", unsafeEntry(name, "has an empty path")
	}
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) || hasVolume(slashed) {
		return "", unsafeEntry(name, "is an absolute path")
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", unsafeEntry(name, "contains a parent directory segment")
		}
	}
	clean := path.Clean(slashed)
	if clean == "." {
		return filepath.Clean(dest), nil
	}
	target := filepath.Join(dest, filepath.FromSlash(clean))
	if !within(dest, target) {
		return "", unsafeEntry(name, "escapes the destination")
	}
	return target, nil
}

func hasVolume(slashed string) bool {
	return len(slashed) >= 2 && slashed[1] == ':' &&
		((slashed[0] >= 'a' && slashed[0] <= 'z') || (slashed[0] >= 'A' && slashed[0] <= 'Z'))
}

// within reports whether target is dest or lies beneath it, lexically.
func within(dest, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(dest), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// checkLinkTarget validates a symlink named entry (already joined to dest
// as linkPath) pointing at linkname.
func checkLinkTarget(dest, entry, linkPath, linkname string) error {
	if linkname == "" {
		return unsafeEntry(entry, "is a symlink with an empty target")
	}
	slashed := strings.ReplaceAll(linkname, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(linkname) || hasVolume(slashed) {
		return unsafeEntry(entry, "is a symlink to an absolute path")
	}
	resolved := filepath.Join(filepath.Dir(linkPath), filepath.FromSlash(slashed))
	if !within(dest, resolved) {
		return unsafeEntry(entry, "is a symlink that escapes the destination")
	}
	return nil
}

// checkNoSymlinkParents refuses to write target when any existing path
// component between dest and target (target included) is a symlink, so a
// previously extracted link cannot redirect later entries.
func checkNoSymlinkParents(dest, entry, target string) error {
	rel, err := filepath.Rel(filepath.Clean(dest), target)
	if err != nil || rel == "." {
		return nil
	}
	cur := filepath.Clean(dest)
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, seg)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return errs.Wrap("ARC_LSTAT", errs.ErrIOFailure, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return unsafeEntry(entry, "would be written through a symlink")
		}
	}
	return nil
}

// maxLinkHops bounds symlink resolution, like the kernel's ELOOP limit.
const maxLinkHops = 40

var errLinkEscapes = errors.New("symlink resolves outside the root")

// resolveWithin follows p component by component, expanding symlinks as
// the filesystem would, and fails as soon as the walk leaves root. Missing
// components are taken literally so dangling links are judged too.
func resolveWithin(root, p string) (string, error) {
	root = filepath.Clean(root)
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil || !within(root, p) {
		return "", errLinkEscapes
	}
	pending := strings.Split(filepath.ToSlash(rel), "/")
	cur := root
	hops := 0
	for len(pending) > 0 {
		seg := pending[0]
		pending = pending[1:]
		switch seg {
		case "", ".":
			continue
		case "..":
			if cur == root {
				return "", errLinkEscapes
			}
			cur = filepath.Dir(cur)
			continue
		}
		next := filepath.Join(cur, seg)
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			cur = next
			continue
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}
		if hops++; hops > maxLinkHops {
			return "", errLinkEscapes
		}
		link, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		slashed := strings.ReplaceAll(link, `\`, "/")
		if filepath.IsAbs(link) || strings.HasPrefix(slashed, "/") || hasVolume(slashed) {
			return "", errLinkEscapes
		}
		pending = append(strings.Split(slashed, "/"), pending...)
	}
	return cur, nil
}

// LinkEscapes reports whether the symlink at linkPath, resolved on disk,
// points outside root or loops.
func LinkEscapes(root, linkPath string) (bool, error) {
	_, err := resolveWithin(root, linkPath)
	if errors.Is(err, errLinkEscapes) {
		return true, nil
	}
	return false, err
}

// VerifyLinks resolves every symlink under root against the final tree.
// Per-entry checks only see links extracted so far; chains such as
// a -> "." followed by b -> "a/../x" are caught here.
func VerifyLinks(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return errs.Wrap("ARC_VERIFY", errs.ErrIOFailure, walkErr)
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		escapes, err := LinkEscapes(root, p)
		if err != nil {
			return errs.Wrap("ARC_VERIFY", errs.ErrIOFailure, err)
		}
		if escapes {
			rel, _ := filepath.Rel(root, p)
			return unsafeEntry(filepath.ToSlash(rel), "is a symlink that resolves outside the destination")
		}
		return nil
	})
}
