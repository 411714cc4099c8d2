package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGraphRAGClientStoreAndStatus(t *testing.T) {
	var stored GraphRAGDocumentRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/graphrag/api/documents", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-App-ID") != "docparse" {
			t.Errorf("X-App-ID = %q", r.Header.Get("X-App-ID"))
		}
		if err := json.NewDecoder(r.Body).Decode(&stored); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"documentId":"doc-9","chunkCount":3}`))
	})
	mux.HandleFunc("/graphrag/api/documents/doc-9/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"indexed","chunkCount":3}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewGraphRAGClient(server.URL + "/")
	ctx := context.Background()

	resp, err := c.StoreDocument(ctx, &GraphRAGDocumentRequest{
		Content: "Name: Jane",
		Title:   "form.pdf",
		Metadata: GraphRAGDocumentMeta{
			ArtifactPath: "scans/form_parsed.json",
			Pages:        []PageInfo{{PageNumber: 1, StartChar: 0, EndChar: 10}},
			PageCount:    1,
		},
	})
	if err != nil {
		t.Fatalf("StoreDocument() error = %v", err)
	}
	if resp.DocumentID != "doc-9" {
		t.Errorf("DocumentID = %q", resp.DocumentID)
	}
	if stored.Metadata.ArtifactPath != "scans/form_parsed.json" || len(stored.Metadata.Pages) != 1 {
		t.Errorf("stored metadata = %+v", stored.Metadata)
	}

	status, err := c.GetDocumentStatus(ctx, "doc-9")
	if err != nil {
		t.Fatalf("GetDocumentStatus() error = %v", err)
	}
	if !status.Indexed() || status.Failed() || status.DocumentID != "doc-9" {
		t.Errorf("status = %+v", status)
	}
}

func TestGraphRAGClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewGraphRAGClient(server.URL)
	ctx := context.Background()

	if _, err := c.StoreDocument(ctx, &GraphRAGDocumentRequest{}); err == nil {
		t.Error("StoreDocument() with empty content error = nil")
	}
	if _, err := c.StoreDocument(ctx, &GraphRAGDocumentRequest{Content: "x"}); err == nil {
		t.Error("StoreDocument() on 500 error = nil")
	}
	if _, err := c.GetDocumentStatus(ctx, "doc-1"); err == nil {
		t.Error("GetDocumentStatus() on 500 error = nil")
	}
}
