// Package convert turns source files into provenance-tagged raw chunks.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"wikirag/internal/chunker"
	"wikirag/internal/domain"
)

// unit is one structural item of a document before chunking.
type unit struct {
	text string
	kind domain.ItemKind
	page int
}

// Local converts plain text, Markdown and DOCX files in-process.
type Local struct {
	maxTokens int
	splitter  *chunker.SentenceChunker
}

// NewLocal creates a converter whose chunks hold at most maxTokens words.
func NewLocal(maxTokens int) *Local {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Local{maxTokens: maxTokens, splitter: chunker.NewSentenceChunker(maxTokens)}
}

// Supports reports whether the extension is handled in-process.
func (l *Local) Supports(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".docx":
		return true
	}
	return false
}

// Convert implements domain.Converter.
func (l *Local) Convert(ctx context.Context, path string) ([]domain.RawChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		units []unit
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		units, err = readText(path, false)
	case ".md", ".markdown":
		units, err = readText(path, true)
	case ".docx":
		units, err = readDocx(path)
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", domain.ErrConversion, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return l.chunk(units), nil
}

// chunk merges consecutive peer units up to the token budget. A heading
// always opens a new chunk so that sections are not glued together.
func (l *Local) chunk(units []unit) []domain.RawChunk {
	var (
		out   []domain.RawChunk
		texts []string
		prov  []domain.Provenance
		count int
	)
	flush := func() {
		if len(texts) == 0 {
			return
		}
		out = append(out, domain.RawChunk{Text: strings.Join(texts, "\n"), Provenance: prov})
		texts, prov, count = nil, nil, 0
	}
	for _, u := range units {
		for _, piece := range l.splitter.Split(u.text) {
			n := len(strings.Fields(piece))
			if u.kind == domain.KindHeading && len(texts) > 0 {
				flush()
			}
			if count+n > l.maxTokens && len(texts) > 0 {
				flush()
			}
			texts = append(texts, piece)
			prov = append(prov, domain.Provenance{PageNumber: u.page, Kind: u.kind})
			count += n
		}
	}
	flush()
	return out
}

var (
	mdHeadingRe = regexp.MustCompile(`^#{1,6}\s+\S`)
	mdListRe    = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
)

func readText(path string, markdown bool) ([]unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConversion, err)
	}
	return parseText(string(data), markdown), nil
}

// parseText splits text into blank-line separated blocks. In Markdown mode,
// heading lines form their own block and blocks are classified as tables or
// lists from their leading characters.
func parseText(s string, markdown bool) []unit {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var (
		out   []unit
		block []string
	)
	emit := func() {
		text := strings.TrimSpace(strings.Join(block, "\n"))
		block = block[:0]
		if text == "" {
			return
		}
		kind := domain.KindText
		if markdown {
			kind = classifyBlock(text)
		}
		out = append(out, unit{text: text, kind: kind})
	}
	for _, line := range strings.Split(s, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			emit()
		case markdown && mdHeadingRe.MatchString(line):
			emit()
			out = append(out, unit{text: strings.TrimSpace(line), kind: domain.KindHeading})
		default:
			block = append(block, line)
		}
	}
	emit()
	return out
}

func classifyBlock(text string) domain.ItemKind {
	lines := strings.Split(text, "\n")
	table, list := true, true
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if !strings.HasPrefix(t, "|") {
			table = false
		}
		if !mdListRe.MatchString(l) {
			list = false
		}
	}
	switch {
	case table:
		return domain.KindTable
	case list:
		return domain.KindList
	}
	return domain.KindText
}
