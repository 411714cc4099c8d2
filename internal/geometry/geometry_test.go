package geometry

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFromNormalizedVertices(t *testing.T) {
	tests := []struct {
		name     string
		vertices []Vertex
		w, h     float64
		want     *Region
	}{
		{
			name:     "TL TR BR BL polygon",
			vertices: []Vertex{{0.1, 0.2}, {0.3, 0.2}, {0.3, 0.4}, {0.1, 0.4}},
			w:        1000, h: 2000,
			want: &Region{TopLeftX: 100, TopLeftY: 400, Width: 200, Height: 400},
		},
		{
			name:     "vertex order does not matter",
			vertices: []Vertex{{0.3, 0.4}, {0.1, 0.4}, {0.1, 0.2}, {0.3, 0.2}},
			w:        1000, h: 2000,
			want: &Region{TopLeftX: 100, TopLeftY: 400, Width: 200, Height: 400},
		},
		{
			name:     "three vertices are enough",
			vertices: []Vertex{{0.1, 0.2}, {0.3, 0.2}, {0.3, 0.4}},
			w:        1000, h: 2000,
			want: &Region{TopLeftX: 100, TopLeftY: 400, Width: 200, Height: 400},
		},
		{
			name:     "rounds half up",
			vertices: []Vertex{{0.125, 0.375}, {0.625, 0.375}, {0.625, 0.875}},
			w:        4, h: 4,
			want: &Region{TopLeftX: 1, TopLeftY: 2, Width: 2, Height: 2},
		},
		{
			name:     "two vertices are absent geometry",
			vertices: []Vertex{{0.1, 0.2}, {0.3, 0.4}},
			w:        1000, h: 2000,
			want: nil,
		},
		{
			name:     "no page size",
			vertices: []Vertex{{0.1, 0.2}, {0.3, 0.2}, {0.3, 0.4}},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromNormalizedVertices(tt.vertices, tt.w, tt.h)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FromNormalizedVertices() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFromRectFlipsNegativeExtent(t *testing.T) {
	got := FromRect(50, 60, -20, -10)
	want := &Region{TopLeftX: 30, TopLeftY: 50, Width: 20, Height: 10}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FromRect() = %+v, want %+v", got, want)
	}
}

func TestFromBottomLeft(t *testing.T) {
	// 72pt box 100pt above the bottom of a 792pt letter page, rendered at 144 dpi.
	got := FromBottomLeft(36, 100, 72, 12, 792, 2)
	want := &Region{TopLeftX: 72, TopLeftY: 1360, Width: 144, Height: 24}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FromBottomLeft() = %+v, want %+v", got, want)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		regions []*Region
		want    *Region
	}{
		{
			name:    "overlapping boxes",
			regions: []*Region{{0, 0, 10, 10}, {5, 5, 10, 10}},
			want:    &Region{TopLeftX: 0, TopLeftY: 0, Width: 15, Height: 15},
		},
		{
			name:    "nil members skipped",
			regions: []*Region{nil, {20, 30, 5, 5}, nil, {10, 40, 5, 5}},
			want:    &Region{TopLeftX: 10, TopLeftY: 30, Width: 15, Height: 15},
		},
		{
			name:    "single region",
			regions: []*Region{{7, 8, 9, 10}},
			want:    &Region{TopLeftX: 7, TopLeftY: 8, Width: 9, Height: 10},
		},
		{name: "all nil", regions: []*Region{nil, nil}, want: nil},
		{name: "empty", regions: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.regions)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Merge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRegionJSONFieldNames(t *testing.T) {
	b, err := json.Marshal(Region{TopLeftX: 1, TopLeftY: 2, Width: 3, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"top_left_x":1,"top_left_y":2,"width":3,"height":4}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}
}
