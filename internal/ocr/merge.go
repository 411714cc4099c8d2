package ocr

import (
	"fmt"
	"sort"
)

// ChunkResult tags one chunk's OCR result with the number of source pages
// that precede the chunk.
type ChunkResult struct {
	Offset int
	Result *Result
}

// MergeChunks recombines chunk results into one result in source page
// order. Chunks are ordered by Offset, never by the order they arrived in,
// and every page and entity reference is shifted by its chunk's offset.
func MergeChunks(chunks []ChunkResult) (*Result, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunk results to merge")
	}

	ordered := make([]ChunkResult, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Offset < ordered[j].Offset })

	first := ordered[0].Result
	if first == nil {
		return nil, fmt.Errorf("chunk at offset %d has no result", ordered[0].Offset)
	}
	merged := &Result{Kind: first.Kind, Provider: first.Provider}

	for _, c := range ordered {
		if c.Result == nil {
			return nil, fmt.Errorf("chunk at offset %d has no result", c.Offset)
		}
		if c.Result.Kind != merged.Kind {
			return nil, fmt.Errorf("chunk at offset %d is %s, expected %s", c.Offset, c.Result.Kind, merged.Kind)
		}
		rebased := c.Result.Rebase(c.Offset)
		merged.Pages = append(merged.Pages, rebased.Pages...)
		merged.EntityPages = append(merged.EntityPages, rebased.EntityPages...)
		merged.Entities = append(merged.Entities, rebased.Entities...)
	}
	return merged, nil
}
