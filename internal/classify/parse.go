package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type groupJSON struct {
	MemberIndices []int  `json:"memberIndices"`
	Role          string `json:"role"`
}

type pageJSON struct {
	Page   *int        `json:"page"`
	Groups []groupJSON `json:"groups"`
}

type responseJSON struct {
	Pages []pageJSON `json:"pages"`
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseResponse decodes and validates a classifier answer for batch. The
// result is keyed by page number.
func parseResponse(raw string, batch []Page) (map[int][]Group, error) {
	body := []byte(stripFences(raw))
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	var pages []pageJSON
	switch body[0] {
	case '[':
		// Bare per-page array, aligned with the batch.
		var bare [][]groupJSON
		if err := decodeStrict(body, &bare); err != nil {
			return nil, err
		}
		if len(bare) != len(batch) {
			return nil, fmt.Errorf("response has %d pages, expected %d", len(bare), len(batch))
		}
		for i := range bare {
			n := batch[i].Page
			pages = append(pages, pageJSON{Page: &n, Groups: bare[i]})
		}
	case '{':
		var resp responseJSON
		if err := decodeStrict(body, &resp); err != nil {
			return nil, err
		}
		if resp.Pages == nil {
			return nil, fmt.Errorf(`response has no "pages" array`)
		}
		pages = resp.Pages
		if len(batch) == 1 && len(pages) == 1 && pages[0].Page == nil {
			n := batch[0].Page
			pages[0].Page = &n
		}
	default:
		return nil, fmt.Errorf("response is not JSON")
	}

	want := make(map[int]Page, len(batch))
	for _, p := range batch {
		want[p.Page] = p
	}

	out := make(map[int][]Group, len(batch))
	for _, pj := range pages {
		if pj.Page == nil {
			return nil, fmt.Errorf("page entry without a page number")
		}
		page, ok := want[*pj.Page]
		if !ok {
			return nil, fmt.Errorf("response answers page %d, which was not asked", *pj.Page)
		}
		if _, dup := out[page.Page]; dup {
			return nil, fmt.Errorf("page %d answered twice", page.Page)
		}
		groups, err := validatePage(page, pj.Groups)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Page, err)
		}
		out[page.Page] = groups
	}

	for _, p := range batch {
		if _, ok := out[p.Page]; !ok {
			return nil, fmt.Errorf("page %d missing from response", p.Page)
		}
	}
	return out, nil
}

func decodeStrict(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("malformed JSON: trailing data after the answer")
	}
	return nil
}

// validatePage checks that groups partition the dense indexes of page and
// returns them with members sorted ascending, in the order given.
func validatePage(page Page, raw []groupJSON) ([]Group, error) {
	n := len(page.Items)
	seen := make([]bool, n)
	groups := make([]Group, 0, len(raw))

	for gi, g := range raw {
		if len(g.MemberIndices) == 0 {
			return nil, fmt.Errorf("group %d has no members", gi)
		}
		role, err := ParseRole(g.Role)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", gi, err)
		}

		members := append([]int(nil), g.MemberIndices...)
		sort.Ints(members)
		for _, idx := range members {
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("group %d references index %d, page has %d items", gi, idx, n)
			}
			if seen[idx] {
				return nil, fmt.Errorf("index %d appears in more than one group", idx)
			}
			seen[idx] = true
		}
		groups = append(groups, Group{Page: page.Page, Members: members, Role: role})
	}

	var missing []int
	for idx, ok := range seen {
		if !ok {
			missing = append(missing, idx)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("indexes %v are not in any group", missing)
	}
	return groups, nil
}
