package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"wikirag/internal/domain"
)

// legacyTargets maps binary Office formats to the OOXML format they are
// rewritten to before conversion.
var legacyTargets = map[string]string{
	".doc": "docx",
	".ppt": "pptx",
	".xls": "xlsx",
}

// Office pre-converts legacy formats with a headless office suite
// (LibreOffice: `libreoffice --headless --convert-to docx <file> --outdir <dir>`).
type Office struct {
	command string
	timeout time.Duration
}

func NewOffice(command string, timeout time.Duration) *Office {
	if command == "" {
		command = "libreoffice"
	}
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Office{command: command, timeout: timeout}
}

// Needs reports whether path is in a legacy binary format.
func (o *Office) Needs(path string) bool {
	_, ok := legacyTargets[strings.ToLower(filepath.Ext(path))]
	return ok
}

// PreConvert writes the converted file into outDir and returns its path.
func (o *Office) PreConvert(ctx context.Context, path, outDir string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	target, ok := legacyTargets[ext]
	if !ok {
		return path, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.command, "--headless", "--convert-to", target, path, "--outdir", outDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: %s %s: %w: %s", domain.ErrConversion, o.command, filepath.Base(path), err, strings.TrimSpace(string(out)))
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	converted := filepath.Join(outDir, base+"."+target)
	if _, err := os.Stat(converted); err != nil {
		return "", fmt.Errorf("%w: expected %s after conversion: %w", domain.ErrConversion, converted, err)
	}
	return converted, nil
}
