package document

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adverant/nexus/docparse-worker/internal/classify"
	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/geometry"
	"github.com/adverant/nexus/docparse-worker/internal/ocr"
)

// Assembler turns classified groups into content lines.
type Assembler struct {
	// DropIrrelevant leaves groups classified as irrelevant out of the
	// artifact.
	DropIrrelevant bool
}

// Assemble builds the document. pages, views and groups are aligned by
// position: views[i] is the dense view of pages[i] and groups[i] its
// classifier groups.
func (a Assembler) Assemble(pages []ocr.Page, views []ocr.DenseView, groups [][]classify.Group) (*Document, error) {
	if len(views) != len(pages) || len(groups) != len(pages) {
		return nil, fmt.Errorf("assembler input mismatch: %d pages, %d views, %d group lists",
			len(pages), len(views), len(groups))
	}

	doc := &Document{Page: make([]Page, 0, len(pages))}
	for i, p := range pages {
		lines, err := a.assemblePage(pages, views[i], groups[i])
		if err != nil {
			if pe, ok := errors.AsProcessingError(err); ok {
				pe.WithDetail("page_number", p.Number)
			}
			return nil, err
		}
		doc.Page = append(doc.Page, Page{
			Lines:      lines,
			PageWidth:  p.Width,
			PageHeight: p.Height,
			PageNumber: p.Number,
		})
	}
	return doc, nil
}

func (a Assembler) assemblePage(pages []ocr.Page, view ocr.DenseView, groups []classify.Group) ([]ContentLine, error) {
	lines := make([]ContentLine, 0, len(groups))
	for _, g := range groups {
		line, err := buildLine(pages, view, g)
		if err != nil {
			return nil, err
		}
		if a.DropIrrelevant && g.Role == classify.RoleIrrelevant {
			continue
		}
		lines = append(lines, line)
	}
	if err := checkCoverage(pages, view, groups); err != nil {
		return nil, err
	}
	return lines, nil
}

// checkCoverage walks the source lines of the page and requires every
// classifiable one to sit in exactly one group. Members are already known
// to be in range.
func checkCoverage(pages []ocr.Page, view ocr.DenseView, groups []classify.Group) error {
	if view.Page < 0 || view.Page >= len(pages) {
		return errors.NewIndexIntegrityError("", view.Page, -1, len(pages), "dense view points at a missing page")
	}
	uses := make([]int, view.Len())
	for _, g := range groups {
		for _, dense := range g.Members {
			uses[dense]++
		}
	}

	src := pages[view.Page].Lines
	for i := range src {
		dense, ok := view.Dense(i)
		if !ok {
			continue
		}
		switch {
		case uses[dense] == 0:
			return errors.NewIndexIntegrityError("", view.Page, i, len(src), "source line is not in any group")
		case uses[dense] > 1:
			return errors.NewIndexIntegrityError("", view.Page, i, len(src), "source line is in more than one group")
		}
	}
	return nil
}

func buildLine(pages []ocr.Page, view ocr.DenseView, g classify.Group) (ContentLine, error) {
	if len(g.Members) == 0 {
		return ContentLine{}, errors.NewIndexIntegrityError("", view.Page, -1, view.Len(), "group has no members")
	}

	members := make([]ocr.RawLine, 0, len(g.Members))
	for _, dense := range g.Members {
		key, ok := view.Original(dense)
		if !ok {
			return ContentLine{}, errors.NewIndexIntegrityError("", view.Page, dense, view.Len(),
				"group references a dense index with no source line")
		}
		raw, ok := ocr.Line(pages, key)
		if !ok {
			size := 0
			if key.Page >= 0 && key.Page < len(pages) {
				size = len(pages[key.Page].Lines)
			}
			return ContentLine{}, errors.NewIndexIntegrityError("", key.Page, key.Item, size,
				"dense index maps outside the page's lines")
		}
		members = append(members, raw)
	}

	// Reading order is source order, whatever order the group listed.
	sort.SliceStable(members, func(i, j int) bool { return members[i].LineIndex < members[j].LineIndex })

	texts := make([]string, 0, len(members))
	regions := make([]*geometry.Region, 0, len(members))
	for _, m := range members {
		if t := strings.TrimSpace(m.Text); t != "" {
			texts = append(texts, t)
		}
		regions = append(regions, m.Region)
	}

	first := members[0]
	return ContentLine{
		Text:     strings.TrimSpace(strings.Join(texts, " ")),
		Type:     first.Type,
		TextType: g.Role,
		Region:   geometry.Merge(regions),
		Line:     first.Line,
		Column:   first.Column,
	}, nil
}
