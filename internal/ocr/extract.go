package ocr

import (
	"fmt"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/geometry"
)

// RawLine is one OCR-detected line, immutable once extracted.
type RawLine struct {
	Text      string
	Type      string
	Region    *geometry.Region
	PageIndex int
	LineIndex int
	Line      any
	Column    any
}

// LineKey addresses a RawLine by page position and line position.
type LineKey struct {
	Page int
	Item int
}

// Page is the extracted, page-segmented view of one source page.
type Page struct {
	Index  int // position in the extracted sequence
	Number int // 1-based page number in the source document
	Width  float64
	Height float64
	Lines  []RawLine
}

// Line resolves key against pages, reporting false when either half of the
// key is out of range.
func Line(pages []Page, key LineKey) (RawLine, bool) {
	if key.Page < 0 || key.Page >= len(pages) {
		return RawLine{}, false
	}
	lines := pages[key.Page].Lines
	if key.Item < 0 || key.Item >= len(lines) {
		return RawLine{}, false
	}
	return lines[key.Item], true
}

// Extract turns a raw OCR result into pages of RawLines in source order.
func Extract(res *Result) ([]Page, error) {
	if res == nil {
		return nil, fmt.Errorf("nil OCR result")
	}
	switch res.Kind {
	case KindLineOriented:
		return extractLines(res.Pages), nil
	case KindEntityOriented:
		return extractEntities(res.EntityPages, res.Entities)
	default:
		return nil, fmt.Errorf("unknown OCR result kind %q", res.Kind)
	}
}

func extractLines(src []LinePage) []Page {
	pages := make([]Page, len(src))
	for i, p := range src {
		lines := make([]RawLine, len(p.Lines))
		for j, item := range p.Lines {
			lines[j] = RawLine{
				Text:      item.Text,
				Type:      item.Type,
				Region:    copyRegion(item.Region),
				PageIndex: i,
				LineIndex: j,
				Line:      item.Line,
				Column:    item.Column,
			}
		}
		pages[i] = Page{Index: i, Number: p.Number, Width: p.Width, Height: p.Height, Lines: lines}
	}
	return pages
}

func extractEntities(src []EntityPage, entities []Entity) ([]Page, error) {
	pages := make([]Page, len(src))
	byNumber := make(map[int]int, len(src))
	for i, p := range src {
		pages[i] = Page{Index: i, Number: p.Number, Width: p.Width, Height: p.Height, Lines: []RawLine{}}
		byNumber[p.Number] = i
	}

	for n, e := range entities {
		idx, ok := byNumber[e.Page]
		if !ok {
			return nil, errors.NewIndexIntegrityError("", e.Page, n, len(src),
				"entity references a page missing from the OCR result")
		}
		page := &pages[idx]
		page.Lines = append(page.Lines, RawLine{
			Text:      e.Text,
			Type:      e.Type,
			Region:    geometry.FromNormalizedVertices(e.Vertices, page.Width, page.Height),
			PageIndex: idx,
			LineIndex: len(page.Lines),
			Line:      e.Line,
			Column:    e.Column,
		})
	}
	return pages, nil
}

func copyRegion(r *geometry.Region) *geometry.Region {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
