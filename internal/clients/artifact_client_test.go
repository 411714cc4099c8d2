package clients

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
)

// fileStore is an in-memory stand-in for the FileProcess files API.
type fileStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	uploads int
}

func newFileStore() *fileStore {
	return &fileStore{files: map[string][]byte{}}
}

func (s *fileStore) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/fileprocess/api/files/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("overwrite") != "true" || r.FormValue("source_service") != sourceService {
			t.Errorf("upload fields = %v", r.MultipartForm.Value)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)

		s.mu.Lock()
		s.files[r.FormValue("path")] = data
		s.uploads++
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"artifact":{"id":"a1","storage_backend":"minio"}}`))
	})
	mux.HandleFunc("/fileprocess/api/files/content", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		data, ok := s.files[r.URL.Query().Get("path")]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestArtifactClientRoundTrip(t *testing.T) {
	store := newFileStore()
	server := httptest.NewServer(store.handler(t))
	defer server.Close()

	c := NewArtifactClient(server.URL)
	ctx := context.Background()

	if err := c.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	const p = "tenant/scans/form_parsed.json"
	if err := c.Upload(ctx, p, []byte(`{"page":[]}`), "application/json"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if err := c.Upload(ctx, p, []byte(`{"page":[{}]}`), "application/json"); err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}

	got, err := c.Download(ctx, p)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(got) != `{"page":[{}]}` {
		t.Errorf("Download() = %s, want the second upload", got)
	}
	if len(store.files) != 1 {
		t.Errorf("stored %d files, want 1", len(store.files))
	}
}

func TestArtifactClientDownloadMissing(t *testing.T) {
	server := httptest.NewServer(newFileStore().handler(t))
	defer server.Close()

	_, err := NewArtifactClient(server.URL).Download(context.Background(), "missing.pdf")
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Download() error = %v, want ErrNotFound", err)
	}
}

func TestArtifactClientUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
	}))
	defer server.Close()

	c := NewArtifactClient(server.URL)
	if err := c.Upload(context.Background(), "a.json", []byte("{}"), "application/json"); err == nil {
		t.Fatal("Upload() error = nil, want rejection")
	}
	if err := c.Upload(context.Background(), "", []byte("{}"), "application/json"); err == nil {
		t.Fatal("Upload() with empty path error = nil")
	}
}
