package chunker

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// blankPDF builds a minimal PDF with n empty letter-size pages and a
// correct cross-reference table.
func blankPDF(n int) []byte {
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPDFSplitter(t *testing.T) {
	s := NewPDFSplitter()
	doc := blankPDF(5)

	n, err := s.PageCount(doc)
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if n != 5 {
		t.Fatalf("PageCount() = %d, want 5", n)
	}

	part, err := s.Extract(doc, 2, 3)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if n, err := s.PageCount(part); err != nil || n != 2 {
		t.Fatalf("extracted PageCount() = %d, %v; want 2", n, err)
	}
}

func TestPDFSplitterRejectsBadRange(t *testing.T) {
	s := NewPDFSplitter()
	if _, err := s.Extract(blankPDF(2), 2, 1); err == nil {
		t.Fatal("Extract(2, 1) succeeded, want error")
	}
}
