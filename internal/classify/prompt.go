package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adverant/nexus/docparse-worker/internal/ocr"
)

const systemPrompt = `You segment OCR output of exam and worksheet pages.

Each page is a list of items. An item is one OCR line with a numeric index.
Group items that together form one logical statement, for example a
question stem and its answer options split over several lines. Then give
every group a role:
  "Q"  a question, including its options
  "R"  context relevant to a question (instructions, passages, figures captions)
  "I"  irrelevant text (headers, footers, page numbers, watermarks)

Rules:
- Every item index of a page must appear in exactly one group of that page.
- Never invent indexes and never move an item to another page.
- List groups in reading order.

Answer with JSON only, no prose, in exactly this shape:
{"pages":[{"page":<page>,"groups":[{"memberIndices":[<index>,...],"role":"Q"}]}]}`

type promptPage struct {
	Page  int             `json:"page"`
	Items []ocr.DenseItem `json:"items"`
}

func buildPrompt(batch []Page, feedback string) (string, error) {
	pages := make([]promptPage, len(batch))
	for i, p := range batch {
		pages[i] = promptPage{Page: p.Page, Items: p.Items}
	}
	body, err := json.Marshal(map[string]interface{}{"pages": pages})
	if err != nil {
		return "", fmt.Errorf("failed to marshal classifier input: %w", err)
	}

	var b strings.Builder
	b.WriteString("Classify the items of these pages:\n")
	b.Write(body)
	if feedback != "" {
		b.WriteString("\n\nYour previous answer was rejected: ")
		b.WriteString(feedback)
		b.WriteString("\nAnswer again with valid JSON in the required shape.")
	}
	return b.String(), nil
}
