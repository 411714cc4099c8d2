// Package document builds the parsed-document artifact from extracted OCR
// pages and classifier groups.
package document

import (
	"github.com/adverant/nexus/docparse-worker/internal/classify"
	"github.com/adverant/nexus/docparse-worker/internal/geometry"
)

// ContentLine is one logical statement of a page.
type ContentLine struct {
	Text     string           `json:"text"`
	Type     string           `json:"type"`
	TextType classify.Role    `json:"textType"`
	Region   *geometry.Region `json:"region"`
	Line     any              `json:"line"`
	Column   any              `json:"column"`
}

// Page is one source page of the artifact.
type Page struct {
	Lines      []ContentLine `json:"lines"`
	PageWidth  float64       `json:"pageWidth,omitempty"`
	PageHeight float64       `json:"pageHeight,omitempty"`
	PageNumber int           `json:"pageNumber"`
}

// Document is the persisted artifact.
type Document struct {
	Page []Page `json:"page"`
}

// LineCount returns the number of content lines across all pages.
func (d *Document) LineCount() int {
	n := 0
	for _, p := range d.Page {
		n += len(p.Lines)
	}
	return n
}

// CountRole returns the number of content lines with the given role.
func (d *Document) CountRole(role classify.Role) int {
	n := 0
	for _, p := range d.Page {
		for _, l := range p.Lines {
			if l.TextType == role {
				n++
			}
		}
	}
	return n
}
