package geometry

import "math"

// Merge returns the smallest Region enclosing every non-nil region, or nil
// when there is none. Nil members are skipped rather than treated as a
// zero-area box at the origin.
func Merge(regions []*Region) *Region {
	var (
		found                   bool
		left, top, right, bottom float64
	)

	for _, r := range regions {
		if r == nil {
			continue
		}
		if !found {
			left, top, right, bottom = r.TopLeftX, r.TopLeftY, r.Right(), r.Bottom()
			found = true
			continue
		}
		left = math.Min(left, r.TopLeftX)
		top = math.Min(top, r.TopLeftY)
		right = math.Max(right, r.Right())
		bottom = math.Max(bottom, r.Bottom())
	}

	if !found {
		return nil
	}
	return &Region{TopLeftX: left, TopLeftY: top, Width: right - left, Height: bottom - top}
}
