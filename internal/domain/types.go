package domain

import (
	"path/filepath"
	"time"
)

// FingerprintRecord is the last successful ingestion of a file.
type FingerprintRecord struct {
	FilePath    string    `json:"-"`
	Hash        string    `json:"hash"`
	IngestedAt  time.Time `json:"ingested_at"`
	ChunksCount int       `json:"chunks_count"`
	Collection  string    `json:"collection"`
}

// FileName is the base name of the record's path.
func (r FingerprintRecord) FileName() string { return filepath.Base(r.FilePath) }

// Matches reports whether the record still describes a file with the given
// content hash routed to the given collection.
func (r *FingerprintRecord) Matches(hash, collection string) bool {
	return r != nil && r.Hash == hash && r.Collection == collection
}

// ItemKind is the structural kind of a converted document item.
type ItemKind string

const (
	KindText    ItemKind = "text"
	KindHeading ItemKind = "section_header"
	KindList    ItemKind = "list_item"
	KindTable   ItemKind = "table"
	KindPicture ItemKind = "picture"
)

// Provenance locates one item of a chunk in the source document.
// PageNumber is 0 when the format has no pages.
type Provenance struct {
	PageNumber int      `json:"page_no"`
	Kind       ItemKind `json:"label"`
}

// RawChunk is a token-bounded unit emitted by the conversion service.
type RawChunk struct {
	Text       string
	Provenance []Provenance
}

// Passage is the unit that gets embedded and indexed.
type Passage struct {
	Text           string
	Representative RawChunk
}

// PageNumber is the first page recorded for the passage's representative chunk.
func (p Passage) PageNumber() int {
	for _, pr := range p.Representative.Provenance {
		if pr.PageNumber > 0 {
			return pr.PageNumber
		}
	}
	return 0
}

// IsTable reports whether the representative chunk starts with a table item.
func (p Passage) IsTable() bool {
	return len(p.Representative.Provenance) > 0 && p.Representative.Provenance[0].Kind == KindTable
}

// PassagePayload is the metadata stored next to every vector.
type PassagePayload struct {
	Text       string `json:"text"`
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	FileDate   string `json:"file_date,omitempty"`
	Category   string `json:"category"`
	ChunkIndex int    `json:"chunk_index"`
	PageNumber int    `json:"page_number"`
	IsTable    bool   `json:"is_table"`
}

// Point is one entry of the vector index.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload PassagePayload
}

// FileFilter selects the points of one file. MinChunkIndex > 0 restricts the
// selection to chunk_index >= MinChunkIndex.
type FileFilter struct {
	FilePath      string
	MinChunkIndex int
}

// Hit is a ranked search result. Payload is nil when the stored payload is not
// a passage record.
type Hit struct {
	ID      uint64
	Score   float64
	Payload *PassagePayload
}

// Message is a chat message for the generation service.
type Message struct {
	Role    string
	Content string
}

// CompletionOptions bound a generation request.
type CompletionOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}
