package ocr

import (
	"testing"
)

func linePages(first, count int) []LinePage {
	pages := make([]LinePage, count)
	for i := range pages {
		pages[i] = LinePage{Number: first + i, Lines: []LineItem{{Text: "x"}}}
	}
	return pages
}

func TestMergeChunksRestoresSourceOrder(t *testing.T) {
	// Chunk results arrive in completion order, not source order. Each
	// chunk numbers its own pages from 1.
	arrived := []ChunkResult{
		{Offset: 4, Result: &Result{Kind: KindLineOriented, Pages: linePages(1, 2)}},
		{Offset: 0, Result: &Result{Kind: KindLineOriented, Pages: linePages(1, 2)}},
		{Offset: 2, Result: &Result{Kind: KindLineOriented, Pages: linePages(1, 2)}},
	}

	merged, err := MergeChunks(arrived)
	if err != nil {
		t.Fatalf("MergeChunks() error = %v", err)
	}
	if merged.PageCount() != 6 {
		t.Fatalf("PageCount() = %d, want 6", merged.PageCount())
	}
	for i, p := range merged.Pages {
		if p.Number != i+1 {
			t.Errorf("page %d has number %d, want %d", i, p.Number, i+1)
		}
	}

	// Inputs are left untouched.
	if arrived[0].Result.Pages[0].Number != 1 {
		t.Errorf("MergeChunks mutated its input")
	}
}

func TestMergeChunksRebasesEntities(t *testing.T) {
	chunk := func(text string) *Result {
		return &Result{
			Kind:        KindEntityOriented,
			EntityPages: []EntityPage{{Number: 1, Width: 10, Height: 10}},
			Entities:    []Entity{{Page: 1, Text: text}},
		}
	}

	merged, err := MergeChunks([]ChunkResult{
		{Offset: 15, Result: chunk("second")},
		{Offset: 0, Result: chunk("first")},
	})
	if err != nil {
		t.Fatalf("MergeChunks() error = %v", err)
	}

	if merged.EntityPages[0].Number != 1 || merged.EntityPages[1].Number != 16 {
		t.Errorf("entity pages = %+v, want numbers 1 and 16", merged.EntityPages)
	}
	if merged.Entities[0].Text != "first" || merged.Entities[1].Page != 16 {
		t.Errorf("entities = %+v", merged.Entities)
	}

	pages, err := Extract(merged)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(pages) != 2 || pages[1].Lines[0].Text != "second" {
		t.Errorf("extracted pages = %+v", pages)
	}
}

func TestMergeChunksErrors(t *testing.T) {
	tests := []struct {
		name   string
		chunks []ChunkResult
	}{
		{name: "no chunks"},
		{name: "nil result", chunks: []ChunkResult{{Offset: 0}}},
		{
			name: "mixed kinds",
			chunks: []ChunkResult{
				{Offset: 0, Result: &Result{Kind: KindLineOriented}},
				{Offset: 2, Result: &Result{Kind: KindEntityOriented}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MergeChunks(tt.chunks); err == nil {
				t.Fatalf("MergeChunks() succeeded, want error")
			}
		})
	}
}
