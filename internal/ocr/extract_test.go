package ocr

import (
	"reflect"
	"testing"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/geometry"
)

func TestExtractLineOriented(t *testing.T) {
	res := &Result{
		Kind: KindLineOriented,
		Pages: []LinePage{
			{Number: 1, Width: 800, Height: 1000, Lines: []LineItem{
				{Text: "1. What is 2+2?", Type: "text", Region: &geometry.Region{TopLeftX: 10, TopLeftY: 20, Width: 100, Height: 12}, Line: 1, Column: 1},
				{Text: "A) 4", Type: "simple_cell", Line: "1-2", Column: "a"},
			}},
			{Number: 2, Width: 800, Height: 1000},
		},
	}

	pages, err := Extract(res)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}

	want := []RawLine{
		{Text: "1. What is 2+2?", Type: "text", Region: &geometry.Region{TopLeftX: 10, TopLeftY: 20, Width: 100, Height: 12}, PageIndex: 0, LineIndex: 0, Line: 1, Column: 1},
		{Text: "A) 4", Type: "simple_cell", PageIndex: 0, LineIndex: 1, Line: "1-2", Column: "a"},
	}
	if !reflect.DeepEqual(pages[0].Lines, want) {
		t.Errorf("page 0 lines = %+v, want %+v", pages[0].Lines, want)
	}
	if len(pages[1].Lines) != 0 || pages[1].Number != 2 || pages[1].Index != 1 {
		t.Errorf("page 1 = %+v, want empty page number 2 at index 1", pages[1])
	}

	// Extracted regions must not alias the OCR result.
	res.Pages[0].Lines[0].Region.Width = 999
	if pages[0].Lines[0].Region.Width != 100 {
		t.Errorf("extracted region aliases the OCR result")
	}
}

func TestExtractEntityOriented(t *testing.T) {
	res := &Result{
		Kind: KindEntityOriented,
		EntityPages: []EntityPage{
			{Number: 1, Width: 1000, Height: 2000},
			{Number: 2, Width: 1000, Height: 2000},
		},
		Entities: []Entity{
			{Page: 2, Text: "second page", Type: "text", Vertices: []geometry.Vertex{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.2}, {X: 0.3, Y: 0.4}, {X: 0.1, Y: 0.4}}},
			{Page: 1, Text: "first page", Type: "text", Vertices: []geometry.Vertex{{X: 0.5, Y: 0.5}}},
			{Page: 2, Text: "again", Type: "text"},
		},
	}

	pages, err := Extract(res)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got := len(pages[0].Lines); got != 1 {
		t.Fatalf("page 1 lines = %d, want 1", got)
	}
	if pages[0].Lines[0].Region != nil {
		t.Errorf("one vertex should give no region, got %+v", pages[0].Lines[0].Region)
	}

	second := pages[1].Lines
	if len(second) != 2 || second[0].Text != "second page" || second[1].Text != "again" {
		t.Fatalf("page 2 lines = %+v", second)
	}
	if second[1].LineIndex != 1 || second[1].PageIndex != 1 {
		t.Errorf("line index = %d/%d, want page 1 line 1", second[1].PageIndex, second[1].LineIndex)
	}
	want := &geometry.Region{TopLeftX: 100, TopLeftY: 400, Width: 200, Height: 400}
	if !reflect.DeepEqual(second[0].Region, want) {
		t.Errorf("region = %+v, want %+v", second[0].Region, want)
	}
}

func TestExtractEntityOnMissingPage(t *testing.T) {
	res := &Result{
		Kind:        KindEntityOriented,
		EntityPages: []EntityPage{{Number: 1, Width: 10, Height: 10}},
		Entities:    []Entity{{Page: 3, Text: "orphan"}},
	}

	_, err := Extract(res)
	if errors.CodeOf(err) != errors.ErrorIndexIntegrity {
		t.Fatalf("Extract() error = %v, want %s", err, errors.ErrorIndexIntegrity)
	}
}

func TestLineLookup(t *testing.T) {
	pages := []Page{{Lines: []RawLine{{Text: "a"}, {Text: "b"}}}}

	if l, ok := Line(pages, LineKey{Page: 0, Item: 1}); !ok || l.Text != "b" {
		t.Errorf("Line(0,1) = %+v, %v", l, ok)
	}
	for _, key := range []LineKey{{0, 2}, {1, 0}, {-1, 0}, {0, -1}} {
		if _, ok := Line(pages, key); ok {
			t.Errorf("Line(%+v) resolved, want out of range", key)
		}
	}
}
