package archive

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"profilepm/internal/errs"
)

// Digest returns "blake3:<hex>" over the bytes of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.Wrap("ARC_DIGEST", errs.ErrIOFailure, err)
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.Wrap("ARC_DIGEST", errs.ErrIOFailure, err)
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}
