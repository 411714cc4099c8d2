// Package classify groups the OCR lines of each page into logical
// statements and tags every group with a role, using an LLM behind the
// Completer interface.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/adverant/nexus/docparse-worker/internal/ocr"
)

// Role is the closed set of group classifications.
type Role string

const (
	RoleQuestion   Role = "Q"
	RoleRelevant   Role = "R"
	RoleIrrelevant Role = "I"
)

// ParseRole accepts the one-letter codes and their long forms, in any case.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "q", "question":
		return RoleQuestion, nil
	case "r", "relevant":
		return RoleRelevant, nil
	case "i", "irrelevant":
		return RoleIrrelevant, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Page is the dense line list of one page as the classifier sees it. Page
// is the key the model answers with and must be unique within one Classify
// call; callers use the page's position in the document, not the number
// the OCR backend printed on it.
type Page struct {
	Page  int
	Items []ocr.DenseItem
}

// Group is one logical statement: dense item indexes in ascending order and
// the role of the whole statement.
type Group struct {
	Page    int
	Members []int
	Role    Role
}

// Completer sends one system+user prompt pair to a language model and
// returns the raw text answer.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}
