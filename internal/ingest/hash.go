package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"wikirag/internal/domain"
)

// fileHash is the hex md5 digest of the whole file, streamed.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrConversion, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: hash %s: %w", domain.ErrConversion, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
