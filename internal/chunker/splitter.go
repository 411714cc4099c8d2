package chunker

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Splitter counts and cuts the pages of a source document.
type Splitter interface {
	PageCount(data []byte) (int, error)
	// Extract returns a document holding pages first..last (1-based,
	// inclusive) of data.
	Extract(data []byte, first, last int) ([]byte, error)
}

// PDFSplitter splits PDFs with pdfcpu.
type PDFSplitter struct{}

// NewPDFSplitter creates a PDF splitter.
func NewPDFSplitter() *PDFSplitter {
	return &PDFSplitter{}
}

// pdfcpu writes into the configuration it is given, so every call gets its
// own.
func (s *PDFSplitter) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (s *PDFSplitter) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), s.conf())
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}

func (s *PDFSplitter) Extract(data []byte, first, last int) ([]byte, error) {
	if first < 1 || last < first {
		return nil, fmt.Errorf("invalid page range %d-%d", first, last)
	}

	var buf bytes.Buffer
	selection := []string{fmt.Sprintf("%d-%d", first, last)}
	if err := api.Trim(bytes.NewReader(data), &buf, selection, s.conf()); err != nil {
		return nil, fmt.Errorf("pdfcpu trim %s: %w", selection[0], err)
	}
	return buf.Bytes(), nil
}
