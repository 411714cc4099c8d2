package clients

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"github.com/adverant/nexus/docparse-worker/internal/ocr"
)

func box(x0, y0, x1, y1 float32) *documentaipb.BoundingPoly {
	return &documentaipb.BoundingPoly{NormalizedVertices: []*documentaipb.NormalizedVertex{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

func segment(start, end int64) *documentaipb.Document_TextAnchor {
	return &documentaipb.Document_TextAnchor{TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
		{StartIndex: start, EndIndex: end},
	}}
}

func TestEntitiesFromDocumentLines(t *testing.T) {
	doc := &documentaipb.Document{
		Text: "Größe: 12\nTotal\n",
		Pages: []*documentaipb.Document_Page{{
			PageNumber: 1,
			Dimension:  &documentaipb.Document_Page_Dimension{Width: 1000, Height: 2000},
			Lines: []*documentaipb.Document_Page_Line{
				{Layout: &documentaipb.Document_Page_Layout{TextAnchor: segment(0, 9), BoundingPoly: box(0.1, 0.2, 0.3, 0.4)}},
				{Layout: &documentaipb.Document_Page_Layout{TextAnchor: segment(10, 15), BoundingPoly: box(0.1, 0.5, 0.2, 0.6)}},
			},
		}},
	}

	res := entitiesFromDocument(doc)
	if res.Kind != ocr.KindEntityOriented {
		t.Fatalf("Kind = %v", res.Kind)
	}
	if len(res.EntityPages) != 1 || res.EntityPages[0].Width != 1000 || res.EntityPages[0].Height != 2000 {
		t.Fatalf("EntityPages = %+v", res.EntityPages)
	}
	if len(res.Entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(res.Entities))
	}
	// Offsets count runes, so the umlauts do not shift the slice.
	if res.Entities[0].Text != "Größe: 12" || res.Entities[1].Text != "Total" {
		t.Errorf("texts = %q, %q", res.Entities[0].Text, res.Entities[1].Text)
	}
	if len(res.Entities[0].Vertices) != 4 {
		t.Errorf("vertices = %+v", res.Entities[0].Vertices)
	}
	if res.Entities[1].Line != 2 {
		t.Errorf("Line = %v, want 2", res.Entities[1].Line)
	}
}

func TestEntitiesFromDocumentEntities(t *testing.T) {
	doc := &documentaipb.Document{
		Text: "Invoice 42",
		Pages: []*documentaipb.Document_Page{
			{PageNumber: 1, Dimension: &documentaipb.Document_Page_Dimension{Width: 100, Height: 100}},
			{PageNumber: 2, Dimension: &documentaipb.Document_Page_Dimension{Width: 100, Height: 100}},
		},
		Entities: []*documentaipb.Document_Entity{
			{
				Type:       "invoice_id",
				Id:         "e1",
				TextAnchor: segment(8, 10),
				PageAnchor: &documentaipb.Document_PageAnchor{PageRefs: []*documentaipb.Document_PageAnchor_PageRef{
					{Page: 1, BoundingPoly: box(0.5, 0.5, 0.6, 0.6)},
				}},
			},
		},
	}

	res := entitiesFromDocument(doc)
	if len(res.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(res.Entities))
	}
	e := res.Entities[0]
	if e.Page != 2 || e.Text != "42" || e.Type != "invoice_id" || e.Column != "e1" {
		t.Errorf("entity = %+v", e)
	}
}

func TestEntitiesFromNilDocument(t *testing.T) {
	res := entitiesFromDocument(nil)
	if res.Kind != ocr.KindEntityOriented || len(res.Entities) != 0 {
		t.Errorf("entitiesFromDocument(nil) = %+v", res)
	}
}
