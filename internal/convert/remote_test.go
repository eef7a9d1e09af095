package convert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func TestRemote_Convert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convert", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("merge_peers"))
		assert.Equal(t, "512", r.URL.Query().Get("max_tokens"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "guide.pdf", hdr.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "%PDF-fake", string(body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"chunks": []map[string]any{
				{"text": "Titre", "provenance": []map[string]any{{"page_no": 1, "label": "section_header"}}},
				{"text": "| a | b |", "provenance": []map[string]any{{"page_no": 2, "label": "table"}}},
			},
		})
	}))
	defer srv.Close()

	path := writeFile(t, t.TempDir(), "guide.pdf", "%PDF-fake")
	r := NewRemote(RemoteConfig{URL: srv.URL, MaxTokens: 512, Timeout: 5 * time.Second})

	chunks, err := r.Convert(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Titre", chunks[0].Text)
	assert.Equal(t, domain.KindHeading, chunks[0].Provenance[0].Kind)
	assert.Equal(t, 2, chunks[1].Provenance[0].PageNumber)
	assert.Equal(t, domain.KindTable, chunks[1].Provenance[0].Kind)
}

func TestRemote_ConvertServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"encrypted document"}`))
	}))
	defer srv.Close()

	path := writeFile(t, t.TempDir(), "locked.pdf", "x")
	_, err := NewRemote(RemoteConfig{URL: srv.URL}).Convert(context.Background(), path)
	require.ErrorIs(t, err, domain.ErrConversion)
	assert.Contains(t, err.Error(), "encrypted document")
}

func TestRemote_ConvertMissingFile(t *testing.T) {
	_, err := NewRemote(RemoteConfig{URL: "http://127.0.0.1:1"}).Convert(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	assert.ErrorIs(t, err, domain.ErrConversion)
}

type stubConverter struct {
	calls []string
}

func (s *stubConverter) Convert(_ context.Context, path string) ([]domain.RawChunk, error) {
	s.calls = append(s.calls, path)
	return []domain.RawChunk{{Text: "remote"}}, nil
}

func TestMulti_Routing(t *testing.T) {
	dir := t.TempDir()
	md := writeFile(t, dir, "a.md", "local text")
	pdf := writeFile(t, dir, "b.pdf", "bin")

	remote := &stubConverter{}
	m := NewMulti(NewLocal(100), remote, false)

	chunks, err := m.Convert(context.Background(), md)
	require.NoError(t, err)
	assert.Equal(t, "local text", chunks[0].Text)

	chunks, err = m.Convert(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, "remote", chunks[0].Text)
	assert.Equal(t, []string{pdf}, remote.calls)

	_, err = NewMulti(NewLocal(100), remote, true).Convert(context.Background(), md)
	require.NoError(t, err)
	assert.Len(t, remote.calls, 2, "remote first sends every format to the service")

	_, err = NewMulti(NewLocal(100), nil, false).Convert(context.Background(), pdf)
	assert.ErrorIs(t, err, domain.ErrConversion)
}

func TestOffice_Needs(t *testing.T) {
	o := NewOffice("", 0)
	assert.True(t, o.Needs("old/report.DOC"))
	assert.True(t, o.Needs("budget.xls"))
	assert.True(t, o.Needs("talk.ppt"))
	assert.False(t, o.Needs("report.docx"))
	assert.False(t, o.Needs("notes.txt"))
}

func TestOffice_PreConvert(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the office command")
	}
	dir := t.TempDir()
	// Fake office suite: writes "<outdir>/<base>.<target>".
	script := filepath.Join(dir, "fake-office")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
target="$3"; src="$4"; out="$6"
base=$(basename "$src"); base="${base%.*}"
echo converted > "$out/$base.$target"
`), 0o755))

	src := writeFile(t, dir, "ancien.doc", "binary")
	outDir := t.TempDir()

	got, err := NewOffice(script, 10*time.Second).PreConvert(context.Background(), src, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "ancien.docx"), got)
	assert.FileExists(t, got)

	unchanged, err := NewOffice(script, 0).PreConvert(context.Background(), "a.pdf", outDir)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", unchanged)
}

func TestOffice_PreConvertFailure(t *testing.T) {
	src := writeFile(t, t.TempDir(), "x.ppt", "binary")
	_, err := NewOffice(filepath.Join(t.TempDir(), "no-such-office"), time.Second).PreConvert(context.Background(), src, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrConversion)
}
