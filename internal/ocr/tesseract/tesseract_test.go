package tesseract

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/docparse-worker/internal/geometry"
	"github.com/adverant/nexus/docparse-worker/internal/ocr"
)

type recordingLoader struct {
	path  string
	bytes int
}

func (r *recordingLoader) SetImage(path string) error { r.path = path; return nil }
func (r *recordingLoader) SetImageFromBytes(data []byte) error {
	r.bytes = len(data)
	return nil
}

func TestSetImagePrefersFile(t *testing.T) {
	var fromFile recordingLoader
	if err := setImage(&fromFile, ocr.Source{Path: "/tmp/job/source.png", Data: []byte{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}
	if fromFile.path != "/tmp/job/source.png" || fromFile.bytes != 0 {
		t.Errorf("with path: loader = %+v", fromFile)
	}

	var fromBytes recordingLoader
	if err := setImage(&fromBytes, ocr.Source{Data: []byte{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}
	if fromBytes.path != "" || fromBytes.bytes != 3 {
		t.Errorf("without path: loader = %+v", fromBytes)
	}
}

func TestImageSize(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 640, 480))); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(file, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	for name, src := range map[string]ocr.Source{
		"file":  {Path: file},
		"bytes": {Data: buf.Bytes()},
	} {
		cfg, err := imageSize(src)
		if err != nil {
			t.Fatalf("%s: imageSize() error = %v", name, err)
		}
		if cfg.Width != 640 || cfg.Height != 480 {
			t.Errorf("%s: size = %dx%d", name, cfg.Width, cfg.Height)
		}
	}

	if _, err := imageSize(ocr.Source{Path: filepath.Join(t.TempDir(), "missing.png")}); err == nil {
		t.Error("imageSize() on a missing file succeeded")
	}
}

func TestLinesFromBoxes(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(10, 20, 110, 40), Word: " Name: Jane Doe\n"},
		{Box: image.Rect(10, 50, 60, 70), Word: ""},
	}

	lines := linesFromBoxes(boxes)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Text != "Name: Jane Doe" || lines[0].Line != 1 || lines[1].Line != 2 {
		t.Errorf("lines = %+v", lines)
	}
	want := geometry.Region{TopLeftX: 10, TopLeftY: 20, Width: 100, Height: 20}
	if *lines[0].Region != want {
		t.Errorf("region = %+v, want %+v", *lines[0].Region, want)
	}
}

func TestProviderDefaults(t *testing.T) {
	p := NewProvider(&Config{})
	if len(p.languages) != 1 || p.languages[0] != "eng" {
		t.Errorf("languages = %v", p.languages)
	}
	if !p.Supports("IMAGE/PNG") || p.Supports("application/pdf") {
		t.Error("Supports() should accept images only")
	}
	if p.MaxPages() != 0 {
		t.Error("MaxPages() != 0")
	}
}
