package convert

import (
	"context"
	"fmt"
	"path/filepath"

	"wikirag/internal/domain"
)

// Multi sends each file to the in-process converter when it can handle the
// format and to the remote service otherwise.
type Multi struct {
	local  *Local
	remote domain.Converter
	// remoteFirst routes every format to the remote service when one is set.
	remoteFirst bool
}

func NewMulti(local *Local, remote domain.Converter, remoteFirst bool) *Multi {
	return &Multi{local: local, remote: remote, remoteFirst: remoteFirst}
}

// Convert implements domain.Converter.
func (m *Multi) Convert(ctx context.Context, path string) ([]domain.RawChunk, error) {
	if m.remote != nil && (m.remoteFirst || m.local == nil || !m.local.Supports(path)) {
		return m.remote.Convert(ctx, path)
	}
	if m.local != nil && m.local.Supports(path) {
		return m.local.Convert(ctx, path)
	}
	return nil, fmt.Errorf("%w: no converter for %q files", domain.ErrConversion, filepath.Ext(path))
}
