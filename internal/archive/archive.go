// Package archive extracts compressed profile bundles into a destination
// directory. Every entry is checked for containment before any of its
// bytes are written; one unsafe entry fails the whole extraction.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"profilepm/internal/errs"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGzip
	FormatTarZstd
	FormatTarLZ4
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGzip:
		return "tar.gz"
	case FormatTarZstd:
		return "tar.zst"
	case FormatTarLZ4:
		return "tar.lz4"
	default:
		return "unknown"
	}
}

// Longer suffixes first so ".tar.gz" wins over ".gz"-less ".tar".
var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGzip},
	{".tgz", FormatTarGzip},
	{".tar.zst", FormatTarZstd},
	{".tzst", FormatTarZstd},
	{".tar.lz4", FormatTarLZ4},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

// Detect classifies path by its extension.
func Detect(path string) (Format, bool) {
	lower := strings.ToLower(filepath.Base(path))
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, true
		}
	}
	return FormatUnknown, false
}

// Stats counts what an extraction materialised.
type Stats struct {
	Files   int   `json:"files"`
	Dirs    int   `json:"dirs"`
	Links   int   `json:"links"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

// Extract unpacks src into dest, which must already exist.
func Extract(ctx context.Context, src, dest string, format Format) (Stats, error) {
	x := &extractor{dest: filepath.Clean(dest)}
	var err error
	switch format {
	case FormatZip:
		err = extractZip(ctx, src, x)
	case FormatTar, FormatTarGzip, FormatTarZstd, FormatTarLZ4:
		err = extractTarFile(ctx, src, format, x)
	default:
		err = errs.New("ARC_FORMAT", errs.ErrIOFailure, "unsupported archive format for %q", src)
	}
	if err == nil && x.stats.Links > 0 {
		err = VerifyLinks(x.dest)
	}
	return x.stats, err
}

func extractZip(ctx context.Context, src string, x *extractor) error {
	// An insecure-path complaint still comes with a usable reader; names
	// are judged per entry below.
	r, err := zip.OpenReader(src)
	if r == nil {
		return errs.Wrap("ARC_OPEN", errs.ErrIOFailure, err)
	}
	defer r.Close()
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			err = x.dir(f.Name)
		case mode&fs.ModeSymlink != 0:
			err = x.zipSymlink(f)
		case mode.IsRegular():
			err = x.zipFile(f)
		default:
			x.stats.Skipped++
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) zipFile(f *zip.File) error {
	// Resolve before opening so unsafe names fail without reading data.
	if _, err := x.prepare(f.Name); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return errs.Wrap("ARC_READ", errs.ErrIOFailure, err)
	}
	defer rc.Close()
	return x.file(f.Name, f.Mode(), rc)
}

const maxLinkTarget = 4096

func (x *extractor) zipSymlink(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return errs.Wrap("ARC_READ", errs.ErrIOFailure, err)
	}
	defer rc.Close()
	blob, err := io.ReadAll(io.LimitReader(rc, maxLinkTarget))
	if err != nil {
		return errs.Wrap("ARC_READ", errs.ErrIOFailure, err)
	}
	return x.symlink(f.Name, string(blob))
}

func extractTarFile(ctx context.Context, src string, format Format, x *extractor) error {
	f, err := os.Open(src)
	if err != nil {
		return errs.Wrap("ARC_OPEN", errs.ErrIOFailure, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case FormatTarGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errs.Wrap("ARC_GZIP", errs.ErrIOFailure, err)
		}
		defer gz.Close()
		r = gz
	case FormatTarZstd:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return errs.Wrap("ARC_ZSTD", errs.ErrIOFailure, err)
		}
		defer dec.Close()
		r = dec
	case FormatTarLZ4:
		r = lz4.NewReader(f)
	}
	return extractTar(ctx, r, x)
}

func extractTar(ctx context.Context, r io.Reader, x *extractor) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errs.Wrap("ARC_READ", errs.ErrIOFailure, err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = x.dir(hdr.Name)
		case tar.TypeReg:
			err = x.file(hdr.Name, fs.FileMode(hdr.Mode), tr)
		case tar.TypeSymlink:
			err = x.symlink(hdr.Name, hdr.Linkname)
		case tar.TypeLink:
			err = x.hardlink(hdr.Name, hdr.Linkname)
		case tar.TypeXGlobalHeader:
		default:
			x.stats.Skipped++
		}
		if err != nil {
			return err
		}
	}
}

type extractor struct {
	dest  string
	stats Stats
}

// prepare resolves name and checks it cannot be redirected by a symlink.
func (x *extractor) prepare(name string) (string, error) {
	target, err := SafeJoin(x.dest, name)
	if err != nil {
		return "", err
	}
	if err := checkNoSymlinkParents(x.dest, name, target); err != nil {
		return "", err
	}
	return target, nil
}

func (x *extractor) dir(name string) error {
	target, err := x.prepare(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return errs.Wrap("ARC_MKDIR", errs.ErrIOFailure, err)
	}
	x.stats.Dirs++
	return nil
}

func (x *extractor) file(name string, mode fs.FileMode, r io.Reader) error {
	target, err := x.prepare(name)
	if err != nil {
		return err
	}
	if target == x.dest {
		return unsafeEntry(name, "names the destination itself")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.Wrap("ARC_MKDIR", errs.ErrIOFailure, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return errs.Wrap("ARC_WRITE", errs.ErrIOFailure, err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errs.Wrap("ARC_WRITE", errs.ErrIOFailure, err)
	}
	x.stats.Files++
	x.stats.Bytes += n
	return nil
}

func (x *extractor) symlink(name, linkname string) error {
	target, err := x.prepare(name)
	if err != nil {
		return err
	}
	if err := checkLinkTarget(x.dest, name, target, linkname); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.Wrap("ARC_MKDIR", errs.ErrIOFailure, err)
	}
	if err := os.Symlink(filepath.FromSlash(strings.ReplaceAll(linkname, `\`, "/")), target); err != nil {
		return errs.Wrap("ARC_SYMLINK", errs.ErrIOFailure, err)
	}
	x.stats.Links++
	return nil
}

func (x *extractor) hardlink(name, linkname string) error {
	target, err := x.prepare(name)
	if err != nil {
		return err
	}
	source, err := SafeJoin(x.dest, linkname)
	if err != nil {
		return unsafeEntry(name, "is a hard link that escapes the destination")
	}
	if err := checkNoSymlinkParents(x.dest, name, source); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.Wrap("ARC_MKDIR", errs.ErrIOFailure, err)
	}
	if err := os.Link(source, target); err != nil {
		return errs.Wrap("ARC_LINK", errs.ErrIOFailure, err)
	}
	x.stats.Links++
	return nil
}
