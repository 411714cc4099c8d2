/**
 * OCR Types - Shared data structures for OCR backends
 *
 * Backends answer in one of two shapes. Line-oriented backends return
 * pages of lines with pixel rectangles; entity-oriented backends return a
 * flat entity list keyed by page with normalized polygon vertices.
 * Result carries either shape, tagged by Kind, and the extractor turns
 * both into RawLines.
 */

package ocr

import (
	"github.com/adverant/nexus/docparse-worker/internal/geometry"
)

// Kind tags which half of Result is populated.
type Kind string

const (
	KindLineOriented   Kind = "lineOriented"
	KindEntityOriented Kind = "entityOriented"
)

// Result is the raw answer of one OCR call.
type Result struct {
	Kind     Kind
	Provider string

	// lineOriented
	Pages []LinePage

	// entityOriented
	EntityPages []EntityPage
	Entities    []Entity
}

// LinePage is one page of a line-oriented result.
type LinePage struct {
	Number int // 1-based page number within the submitted document
	Width  float64
	Height float64
	Lines  []LineItem
}

// LineItem is one line as a line-oriented backend reports it.
type LineItem struct {
	Text   string
	Type   string
	Region *geometry.Region
	Line   any
	Column any
}

// EntityPage carries the pixel dimensions of a page referenced by entities.
type EntityPage struct {
	Number int
	Width  float64
	Height float64
}

// Entity is one detected text unit of an entity-oriented result.
type Entity struct {
	Page     int // 1-based page number, must match an EntityPage
	Text     string
	Type     string
	Vertices []geometry.Vertex
	Line     any
	Column   any
}

// PageCount returns the number of pages the result describes.
func (r *Result) PageCount() int {
	if r == nil {
		return 0
	}
	if r.Kind == KindEntityOriented {
		return len(r.EntityPages)
	}
	return len(r.Pages)
}

// Rebase returns a copy of r with every page number and entity page
// reference shifted by offset.
func (r *Result) Rebase(offset int) *Result {
	out := &Result{Kind: r.Kind, Provider: r.Provider}

	if len(r.Pages) > 0 {
		out.Pages = make([]LinePage, len(r.Pages))
		for i, p := range r.Pages {
			p.Number += offset
			out.Pages[i] = p
		}
	}
	if len(r.EntityPages) > 0 {
		out.EntityPages = make([]EntityPage, len(r.EntityPages))
		for i, p := range r.EntityPages {
			p.Number += offset
			out.EntityPages[i] = p
		}
	}
	if len(r.Entities) > 0 {
		out.Entities = make([]Entity, len(r.Entities))
		for i, e := range r.Entities {
			e.Page += offset
			out.Entities[i] = e
		}
	}
	return out
}
