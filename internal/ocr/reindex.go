package ocr

import "strings"

// DenseItem is one classifiable line in the dense per-page numbering.
type DenseItem struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// DenseView is the classifier's view of one page: excluded lines removed
// and the rest numbered 0..n-1, with the mapping back to the original
// line positions.
type DenseView struct {
	Page  int
	Items []DenseItem

	toOriginal []int
	toDense    map[int]int
}

// Excluded reports whether a line is kept out of classification: empty or
// whitespace-only text, or a table line.
func Excluded(l RawLine) bool {
	return strings.TrimSpace(l.Text) == "" || strings.EqualFold(l.Type, "table")
}

// Reindex builds the dense view of p. It is pure: the numbering depends only
// on p's lines.
func Reindex(p Page) DenseView {
	v := DenseView{
		Page:       p.Index,
		Items:      make([]DenseItem, 0, len(p.Lines)),
		toOriginal: make([]int, 0, len(p.Lines)),
		toDense:    make(map[int]int, len(p.Lines)),
	}
	for i, l := range p.Lines {
		if Excluded(l) {
			continue
		}
		dense := len(v.Items)
		v.Items = append(v.Items, DenseItem{Index: dense, Text: strings.TrimSpace(l.Text)})
		v.toOriginal = append(v.toOriginal, i)
		v.toDense[i] = dense
	}
	return v
}

// Len returns the number of dense items.
func (v DenseView) Len() int { return len(v.Items) }

// Original maps a dense index to the key of the RawLine it came from.
func (v DenseView) Original(dense int) (LineKey, bool) {
	if dense < 0 || dense >= len(v.toOriginal) {
		return LineKey{}, false
	}
	return LineKey{Page: v.Page, Item: v.toOriginal[dense]}, true
}

// Dense maps an original line position back to its dense index.
func (v DenseView) Dense(original int) (int, bool) {
	d, ok := v.toDense[original]
	return d, ok
}
