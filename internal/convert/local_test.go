package convert

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseText_Markdown(t *testing.T) {
	md := "# Guide\nIntro paragraph.\n\n- un\n- deux\n\n| a | b |\n| 1 | 2 |\n\n## Suite\nFin."
	units := parseText(md, true)

	require.Len(t, units, 6)
	assert.Equal(t, unit{text: "# Guide", kind: domain.KindHeading}, units[0])
	assert.Equal(t, domain.KindText, units[1].kind)
	assert.Equal(t, domain.KindList, units[2].kind)
	assert.Equal(t, domain.KindTable, units[3].kind)
	assert.Equal(t, domain.KindHeading, units[4].kind)
	assert.Equal(t, "Fin.", units[5].text)
}

func TestParseText_PlainIgnoresMarkup(t *testing.T) {
	units := parseText("# not a heading\r\nsame block\r\n\r\nnext", false)
	require.Len(t, units, 2)
	assert.Equal(t, "# not a heading\nsame block", units[0].text)
	assert.Equal(t, domain.KindText, units[0].kind)
}

func TestLocal_ConvertMarkdownStartsChunkAtHeadings(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "guide.md", "# Accueil\nBienvenue.\n\n# Horaires\nOuvert le lundi.\n\n| jour | heure |\n| lundi | 9h |")

	chunks, err := NewLocal(100).Convert(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "# Accueil\nBienvenue.", chunks[0].Text)
	assert.Equal(t, []domain.Provenance{{Kind: domain.KindHeading}, {Kind: domain.KindText}}, chunks[0].Provenance)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "# Horaires"))
	assert.Equal(t, domain.KindTable, chunks[1].Provenance[2].Kind)
}

func TestLocal_ConvertRespectsTokenBudget(t *testing.T) {
	dir := t.TempDir()
	text := strings.Repeat("mot ", 25) + "\n\n" + strings.Repeat("autre ", 25)
	path := writeFile(t, dir, "notes.txt", text)

	chunks, err := NewLocal(30).Convert(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(strings.Fields(c.Text)), 30)
	}
}

func TestLocal_ConvertEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.txt", "  \n\n ")
	chunks, err := NewLocal(100).Convert(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestLocal_ConvertErrors(t *testing.T) {
	l := NewLocal(100)
	_, err := l.Convert(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrConversion)

	_, err = l.Convert(context.Background(), "slides.pptx")
	assert.ErrorIs(t, err, domain.ErrConversion)
	assert.False(t, l.Supports("report.PDF"))
	assert.True(t, l.Supports("Report.DOCX"))
}

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Procédure</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Déposer le </w:t></w:r><w:r><w:t>dossier.</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Pièce</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Délai</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>CNI</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2 jours</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
<w:p><w:pPr><w:pStyle w:val="ListParagraph"/></w:pPr><w:r><w:t>Signer</w:t></w:r></w:p>
</w:body>
</w:document>`

func writeDocx(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseDocumentXML(t *testing.T) {
	units, err := parseDocumentXML([]byte(documentXML))
	require.NoError(t, err)
	require.Len(t, units, 4)
	assert.Equal(t, unit{text: "Procédure", kind: domain.KindHeading}, units[0])
	assert.Equal(t, unit{text: "Déposer le dossier.", kind: domain.KindText}, units[1])
	assert.Equal(t, unit{text: "| Pièce | Délai |\n| CNI | 2 jours |", kind: domain.KindTable}, units[2])
	assert.Equal(t, domain.KindList, units[3].kind)
}

func TestParseDocumentXML_NestedTable(t *testing.T) {
	doc := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:tbl>
<w:tr>
<w:tc><w:p><w:r><w:t>Étape</w:t></w:r></w:p></w:tc>
<w:tc><w:p><w:r><w:t>Pièces :</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>CNI</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>Photo</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:tc>
<w:tc><w:p><w:r><w:t>Délai</w:t></w:r></w:p></w:tc>
</w:tr>
<w:tr>
<w:tc><w:p><w:r><w:t>Retrait</w:t></w:r></w:p></w:tc>
<w:tc><w:p><w:r><w:t>Sur place</w:t></w:r></w:p></w:tc>
<w:tc><w:p><w:r><w:t>2 jours</w:t></w:r></w:p></w:tc>
</w:tr>
</w:tbl>
<w:p><w:r><w:t>Fin</w:t></w:r></w:p>
</w:body></w:document>`

	units, err := parseDocumentXML([]byte(doc))
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, domain.KindTable, units[0].kind)
	assert.Equal(t,
		"| Étape | Pièces : | CNI | | Photo | | Délai |\n| Retrait | Sur place | 2 jours |",
		units[0].text)
	assert.Equal(t, unit{text: "Fin", kind: domain.KindText}, units[1])
}

func TestLocal_ConvertDocx(t *testing.T) {
	path := writeDocx(t, t.TempDir(), "proc.docx", documentXML)

	chunks, err := NewLocal(100).Convert(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "| CNI | 2 jours |")
	assert.Len(t, chunks[0].Provenance, 4)
}

func TestLocal_ConvertDocxWithoutBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("docProps/core.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = NewLocal(100).Convert(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrConversion)

	notZip := writeFile(t, dir, "fake.docx", "plain text")
	_, err = NewLocal(100).Convert(context.Background(), notZip)
	assert.ErrorIs(t, err, domain.ErrConversion)
}
