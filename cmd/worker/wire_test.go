package main

import (
	"context"
	"strings"
	"testing"

	"github.com/adverant/nexus/docparse-worker/internal/config"
)

func TestQdrantAddress(t *testing.T) {
	tests := map[string]string{
		"http://qdrant:6334":   "qdrant:6334",
		"https://qdrant:6334/": "qdrant:6334",
		"qdrant:6334":          "qdrant:6334",
		"":                     "",
	}
	for in, want := range tests {
		if got := qdrantAddress(in); got != want {
			t.Errorf("qdrantAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"lines", "lines", false},
		{"tesseract", "tesseract", false},
		{"carrier-pigeon", "", true},
	}
	for _, tt := range tests {
		cfg := &config.Config{OCRProvider: tt.provider, OCRAPIURL: "http://ocr:8080", OCRPollInterval: 1, OCRTimeout: 1}
		var cl closers
		p, err := buildProvider(context.Background(), cfg, &cl)
		if (err != nil) != tt.wantErr {
			t.Fatalf("buildProvider(%s) error = %v", tt.provider, err)
		}
		if err == nil && p.Name() != tt.wantName {
			t.Errorf("buildProvider(%s).Name() = %q", tt.provider, p.Name())
		}
	}
}

func TestBuildIndexers(t *testing.T) {
	fanout, err := buildIndexers(&config.Config{GraphRAGURL: "http://graphrag:8090"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fanout) != 1 || fanout[0].Name() != "graphrag" {
		t.Errorf("indexers = %v", fanout)
	}

	none, _ := buildIndexers(&config.Config{}, nil)
	if len(none) != 0 {
		t.Errorf("indexers = %v, want none", none)
	}
}

func TestNewProducerRejectsUnknownBackend(t *testing.T) {
	_, err := newProducer(&config.Config{QueueBackend: "kafka", RedisURL: "redis://localhost:6379"})
	if err == nil || !strings.Contains(err.Error(), "QUEUE_BACKEND") {
		t.Errorf("newProducer() error = %v", err)
	}
}

func TestClosersRunInReverse(t *testing.T) {
	var order []int
	var cl closers
	for i := 0; i < 3; i++ {
		i := i
		cl.add(func() error { order = append(order, i); return nil })
	}
	cl.close()
	if len(order) != 3 || order[0] != 2 || order[2] != 0 {
		t.Errorf("order = %v", order)
	}
}
