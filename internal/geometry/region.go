// Package geometry converts the coordinate conventions of the OCR backends
// into one axis-aligned page-pixel rectangle and merges rectangles.
package geometry

import "math"

// Region is an axis-aligned rectangle in page-pixel units.
type Region struct {
	TopLeftX float64 `json:"top_left_x"`
	TopLeftY float64 `json:"top_left_y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// Vertex is one polygon corner. Normalized vertices lie in [0,1]².
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Right returns the x coordinate of the right edge.
func (r Region) Right() float64 { return r.TopLeftX + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Region) Bottom() float64 { return r.TopLeftY + r.Height }

// FromRect builds a Region from a pixel rectangle. A negative extent moves
// the origin so width and height stay non-negative.
func FromRect(x, y, width, height float64) *Region {
	if width < 0 {
		x += width
		width = -width
	}
	if height < 0 {
		y += height
		height = -height
	}
	return &Region{TopLeftX: x, TopLeftY: y, Width: width, Height: height}
}

// FromNormalizedVertices scales a normalized polygon to page pixels and
// returns its bounding rectangle. Fewer than 3 vertices, or a page without
// dimensions, yields nil.
//
// The corners are taken as min/max over every vertex, so the result does
// not depend on the order the backend lists them in.
func FromNormalizedVertices(vertices []Vertex, pageWidthPx, pageHeightPx float64) *Region {
	if len(vertices) < 3 || pageWidthPx <= 0 || pageHeightPx <= 0 {
		return nil
	}

	minX, minY := vertices[0].X, vertices[0].Y
	maxX, maxY := minX, minY
	for _, v := range vertices[1:] {
		minX = math.Min(minX, v.X)
		minY = math.Min(minY, v.Y)
		maxX = math.Max(maxX, v.X)
		maxY = math.Max(maxY, v.Y)
	}

	return &Region{
		TopLeftX: roundHalfUp(minX * pageWidthPx),
		TopLeftY: roundHalfUp(minY * pageHeightPx),
		Width:    roundHalfUp((maxX - minX) * pageWidthPx),
		Height:   roundHalfUp((maxY - minY) * pageHeightPx),
	}
}

// FromBottomLeft converts a box whose y grows upwards from the page bottom
// (PDF user space) into a top-left pixel Region. scale converts source
// units to pixels, e.g. dpi/72 for PDF points.
func FromBottomLeft(x, y, width, height, pageHeight, scale float64) *Region {
	if scale <= 0 {
		scale = 1
	}
	top := pageHeight - (y + height)
	return &Region{
		TopLeftX: roundHalfUp(x * scale),
		TopLeftY: roundHalfUp(top * scale),
		Width:    roundHalfUp(width * scale),
		Height:   roundHalfUp(height * scale),
	}
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
