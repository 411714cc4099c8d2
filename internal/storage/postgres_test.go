package storage

import (
	"context"
	stderrors "errors"
	"os"
	"testing"

	"github.com/lib/pq"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
)

func TestSanitizeJSONForPostgres(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":"x\u0000y"}`, `{"a":"xy"}`},
		{`{"a":"x\u001fy"}`, `{"a":"x y"}`},
		{`{"a":"plain"}`, `{"a":"plain"}`},
	}
	for _, tt := range tests {
		if got := string(sanitizeJSONForPostgres([]byte(tt.in))); got != tt.want {
			t.Errorf("sanitizeJSONForPostgres(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestJobArgs(t *testing.T) {
	args, err := jobArgs(&JobUpdate{
		JobID:        "job-1",
		Status:       JobStatusCompleted,
		FailedChunks: []int{1, 3},
		Metadata:     map[string]interface{}{"note": "bad\u0000byte"},
	})
	if err != nil {
		t.Fatalf("jobArgs() error = %v", err)
	}
	if len(args) != 18 {
		t.Fatalf("got %d args, want 18", len(args))
	}
	if arr, ok := args[12].(*pq.Int64Array); !ok || len(*arr) != 2 {
		t.Errorf("failed chunks arg = %#v, want a 2-element pq.Int64Array", args[12])
	}
	if args[17] != `{"note":"badbyte"}` {
		t.Errorf("metadata arg = %v", args[17])
	}

	args, _ = jobArgs(&JobUpdate{JobID: "job-2", Status: JobStatusProcessing})
	if args[12] != nil {
		t.Errorf("failed chunks arg = %v, want nil when none failed", args[12])
	}
	if args[17] != "{}" {
		t.Errorf("metadata arg = %v, want {}", args[17])
	}
}

// TestPostgresJobLifecycle runs against a real database when
// TEST_DATABASE_URL is set.
func TestPostgresJobLifecycle(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pg, err := NewPostgresClient(url)
	if err != nil {
		t.Fatalf("NewPostgresClient() error = %v", err)
	}
	defer pg.Close()
	ctx := context.Background()

	if err := pg.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	jobID := "test-" + t.Name()
	if err := pg.UpdateJobStatus(ctx, &JobUpdate{JobID: jobID, Status: JobStatusProcessing, BucketPath: "a.pdf"}); err != nil {
		t.Fatalf("UpdateJobStatus(processing) error = %v", err)
	}
	if err := pg.UpdateJobStatus(ctx, &JobUpdate{
		JobID: jobID, Status: JobStatusCompleted, ArtifactPath: "a_parsed.json",
		TotalChunks: 3, ChunksProcessed: 2, FailedChunks: []int{1},
	}); err != nil {
		t.Fatalf("UpdateJobStatus(completed) error = %v", err)
	}

	job, err := pg.GetJobByID(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJobByID() error = %v", err)
	}
	if job.Status != JobStatusCompleted || job.BucketPath != "a.pdf" || job.ChunksProcessed != 2 {
		t.Errorf("job = %+v", job)
	}
	if len(job.FailedChunks) != 1 || job.FailedChunks[0] != 1 {
		t.Errorf("FailedChunks = %v", job.FailedChunks)
	}

	if _, err := pg.GetJobByID(ctx, "no-such-job"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetJobByID(missing) error = %v, want ErrNotFound", err)
	}
}
