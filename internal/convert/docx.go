package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"wikirag/internal/domain"
)

func readDocx(path string) ([]unit, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open docx: %w", domain.ErrConversion, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConversion, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConversion, err)
		}
		return parseDocumentXML(content)
	}
	return nil, fmt.Errorf("%w: word/document.xml not found", domain.ErrConversion)
}

// table accumulates one w:tbl while it is open.
type table struct {
	rows []string
	row  []string
	cell []string
}

// parseDocumentXML walks word/document.xml in document order. Paragraph
// styles mark headings and list items; each top-level w:tbl becomes one
// table unit rendered as pipe-separated rows. A nested table is flattened
// into the text of the cell that holds it.
func parseDocumentXML(content []byte) ([]unit, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var (
		out    []unit
		para   strings.Builder
		style  string
		inText bool
		tables []*table
	)
	top := func() *table {
		if len(tables) == 0 {
			return nil
		}
		return tables[len(tables)-1]
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse document.xml: %w", domain.ErrConversion, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tables = append(tables, &table{})
			case "tr":
				if tb := top(); tb != nil {
					tb.row = nil
				}
			case "tc":
				if tb := top(); tb != nil {
					tb.cell = nil
				}
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" {
						style = a.Value
					}
				}
			case "t":
				inText = true
			case "tab":
				para.WriteString("\t")
			case "br":
				para.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if tb := top(); tb != nil {
					tb.cell = append(tb.cell, text)
					continue
				}
				out = append(out, unit{text: text, kind: styleKind(style)})
			case "tc":
				if tb := top(); tb != nil {
					tb.row = append(tb.row, strings.Join(tb.cell, " "))
				}
			case "tr":
				if tb := top(); tb != nil {
					tb.rows = append(tb.rows, "| "+strings.Join(tb.row, " | ")+" |")
				}
			case "tbl":
				tb := top()
				if tb == nil {
					continue
				}
				tables = tables[:len(tables)-1]
				if len(tb.rows) == 0 {
					continue
				}
				if outer := top(); outer != nil {
					outer.cell = append(outer.cell, strings.Join(tb.rows, " "))
					continue
				}
				out = append(out, unit{text: strings.Join(tb.rows, "\n"), kind: domain.KindTable})
			}
		}
	}
	return out, nil
}

func styleKind(style string) domain.ItemKind {
	s := strings.ToLower(style)
	switch {
	case strings.HasPrefix(s, "heading"), strings.HasPrefix(s, "titre"), s == "title":
		return domain.KindHeading
	case strings.Contains(s, "list"):
		return domain.KindList
	}
	return domain.KindText
}
