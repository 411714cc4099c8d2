package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/processor"
	"github.com/adverant/nexus/docparse-worker/internal/storage"
)

func TestJobPayloadFileBuffer(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []byte
		wantErr bool
	}{
		{"base64", `{"jobId":"1","bucketPath":"a.pdf","fileBuffer":"JVBERg=="}`, []byte("%PDF"), false},
		{"node buffer", `{"jobId":"1","bucketPath":"a.pdf","fileBuffer":{"type":"Buffer","data":[37,80,68,70]}}`, []byte("%PDF"), false},
		{"absent", `{"jobId":"1","bucketPath":"a.pdf"}`, nil, false},
		{"null", `{"jobId":"1","bucketPath":"a.pdf","fileBuffer":null}`, nil, false},
		{"bad base64", `{"jobId":"1","fileBuffer":"%%%"}`, nil, true},
		{"wrong buffer type", `{"jobId":"1","fileBuffer":{"type":"Blob","data":[1]}}`, nil, true},
		{"byte out of range", `{"jobId":"1","fileBuffer":{"type":"Buffer","data":[256]}}`, nil, true},
		{"number", `{"jobId":"1","fileBuffer":42}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p JobPayload
			err := json.Unmarshal([]byte(tt.body), &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(p.FileBuffer, tt.want) {
				t.Errorf("FileBuffer = %v, want %v", p.FileBuffer, tt.want)
			}
		})
	}
}

func TestJobPayloadFields(t *testing.T) {
	body := `{"jobId":"j-1","userId":"u-1","fileName":"form.pdf","bucketPath":"scans/form.pdf",
		"mimeType":"application/pdf","fileSize":2048,"metadata":{"source":"upload"}}`
	var p JobPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatal(err)
	}
	req := p.Request()
	if req.JobID != "j-1" || req.UserID != "u-1" || req.FileName != "form.pdf" ||
		req.BucketPath != "scans/form.pdf" || req.FileSize != 2048 || req.Metadata["source"] != "upload" {
		t.Errorf("Request() = %+v", req)
	}
}

// A re-queued job must keep its inline buffer.
func TestRedisJobSurvivesRequeue(t *testing.T) {
	job := newRedisJob(&JobPayload{JobID: "j", BucketPath: "a.pdf", FileBuffer: []byte{0, 1, 254, 255}}, 3)
	job.Attempts = 1

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	var back RedisJobData
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back.Payload.FileBuffer, job.Payload.FileBuffer) || back.Attempts != 1 || back.MaxRetries != 3 {
		t.Errorf("round trip = %+v", back)
	}
}

func TestPrepareAssignsJobID(t *testing.T) {
	p := &JobPayload{BucketPath: "a.pdf"}
	if err := prepare(p); err != nil || p.JobID == "" {
		t.Fatalf("prepare() = %v, job id %q", err, p.JobID)
	}
	if err := prepare(&JobPayload{JobID: "x"}); err == nil {
		t.Error("prepare() accepted a job without bucket path")
	}
}

func TestCompletedUpdate(t *testing.T) {
	p := &JobPayload{JobID: "j", UserID: "u", FileName: "f.pdf", BucketPath: "b/f.pdf", Metadata: map[string]interface{}{"k": "v"}}
	res := &processor.ProcessResult{
		ArtifactPath:     "b/f_parsed.json",
		PageCount:        12,
		LineCount:        80,
		TotalChunks:      3,
		ChunksProcessed:  2,
		FailedChunks:     []int{1},
		Provider:         "lines",
		MimeType:         "application/pdf",
		ProcessingTimeMs: 1500,
		IndexFailures:    map[string]string{"vector": "down"},
	}

	u := completedUpdate(p, res)
	if u.Status != storage.JobStatusCompleted || u.ArtifactPath != res.ArtifactPath || u.PageCount != 12 ||
		u.ChunksProcessed != 2 || !reflect.DeepEqual(u.FailedChunks, []int{1}) || u.Provider != "lines" {
		t.Errorf("completedUpdate() = %+v", u)
	}
	if u.Metadata["k"] != "v" || u.Metadata["indexFailures"] == nil {
		t.Errorf("metadata = %v", u.Metadata)
	}
	if _, ok := p.Metadata["indexFailures"]; ok {
		t.Error("payload metadata was modified")
	}
}

func TestFailedUpdate(t *testing.T) {
	p := &JobPayload{JobID: "j", BucketPath: "a.pdf"}

	perr := errors.NewOCRSubmissionError("j", "lines", 0, stderrors.New("503")).WithDetail("total_chunks", 3)
	u := failedUpdate(p, perr, 2*time.Second)
	if u.Status != storage.JobStatusFailed || u.ErrorCode != string(errors.ErrorOCRSubmission) || u.ErrorStage != string(errors.StageOCR) {
		t.Errorf("failedUpdate() = %+v", u)
	}
	if u.TotalChunks != 3 || !reflect.DeepEqual(u.FailedChunks, []int{0, 1, 2}) {
		t.Errorf("chunks = %d %v", u.TotalChunks, u.FailedChunks)
	}
	if u.ProcessingTimeMs != 2000 {
		t.Errorf("ProcessingTimeMs = %d", u.ProcessingTimeMs)
	}

	plain := failedUpdate(p, stderrors.New("boom"), 0)
	if plain.ErrorCode != string(errors.ErrorStorageFailed) || plain.ErrorMessage != "boom" {
		t.Errorf("failedUpdate(plain) = %+v", plain)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.NewUnsupportedFormatError("j", "text/plain", "lines"), false},
		{errors.NewIndexIntegrityError("j", 1, 9, 3, "out of range"), false},
		{errors.NewClassificationParseError("j", []int{1}, 3, stderrors.New("bad json")), true},
		{errors.NewOCRTimeoutError("j", "lines", 0, time.Minute, nil), true},
		{stderrors.New("network"), true},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for n, w := range want {
		if got := retryDelay(n, nil, nil); got != w {
			t.Errorf("retryDelay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestRetryAtBacksOff(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{9, 60 * time.Second},
		{0, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := retryAt(now, tt.attempts).Sub(now); got != tt.want {
			t.Errorf("retryAt(attempts=%d) = now+%v, want now+%v", tt.attempts, got, tt.want)
		}
	}
}

func TestFailureBody(t *testing.T) {
	p := &JobPayload{JobID: "j", BucketPath: "a.pdf"}

	perr := errors.NewClassificationParseError("j", []int{1, 2}, 3, stderrors.New("bad json"))
	body := failureBody(perr, failedUpdate(p, perr, 0), 3)
	if body["error_code"] != string(errors.ErrorClassificationParse) || body["stage"] != string(errors.StageClassify) {
		t.Errorf("body = %v", body)
	}
	if body["cause"] != "bad json" || body["attempts"] != 3 || body["error"] == "" {
		t.Errorf("body = %v", body)
	}
	if _, err := json.Marshal(body); err != nil {
		t.Errorf("body does not encode: %v", err)
	}

	plain := stderrors.New("redis gone")
	body = failureBody(plain, failedUpdate(p, plain, 0), 1)
	if body["error_code"] != string(errors.ErrorStorageFailed) || body["error"] != "redis gone" {
		t.Errorf("plain body = %v", body)
	}
}

type fakeProcessor struct {
	mu      sync.Mutex
	updates []*storage.JobUpdate
	process func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error)
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	return f.process(ctx, req)
}

func (f *fakeProcessor) UpdateJobStatus(ctx context.Context, u *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeProcessor) statuses() []string {
	var out []string
	for _, u := range f.updates {
		out = append(out, u.Status)
	}
	return out
}

func TestJobRunnerLifecycle(t *testing.T) {
	proc := &fakeProcessor{process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
		return &processor.ProcessResult{ArtifactPath: "a_parsed.json"}, nil
	}}
	r := newJobRunner(proc, 0, logging.NewLogger("test"))
	if r.timeout != DefaultProcessingTimeout {
		t.Errorf("timeout = %v", r.timeout)
	}

	p := &JobPayload{JobID: "j", BucketPath: "a.pdf"}
	res, err := r.run(context.Background(), p)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	r.complete(context.Background(), p, res)

	if got := proc.statuses(); !reflect.DeepEqual(got, []string{storage.JobStatusProcessing, storage.JobStatusCompleted}) {
		t.Errorf("statuses = %v", got)
	}
	if proc.updates[1].ArtifactPath != "a_parsed.json" {
		t.Errorf("completed update = %+v", proc.updates[1])
	}
}

func TestJobRunnerTimeout(t *testing.T) {
	proc := &fakeProcessor{process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := newJobRunner(proc, 20, logging.NewLogger("test"))

	_, err := r.run(context.Background(), &JobPayload{JobID: "j", BucketPath: "a.pdf"})
	if errors.CodeOf(err) != errors.ErrorProcessingTimeout {
		t.Fatalf("run() error = %v, want PROCESSING_TIMEOUT", err)
	}
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error should wrap the deadline")
	}
}

func TestJobRunnerRejectsInvalidPayload(t *testing.T) {
	called := false
	proc := &fakeProcessor{process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
		called = true
		return nil, nil
	}}
	r := newJobRunner(proc, 0, logging.NewLogger("test"))

	_, err := r.run(context.Background(), &JobPayload{JobID: "j"})
	if errors.CodeOf(err) != errors.ErrorSourceFetch {
		t.Fatalf("run() error = %v", err)
	}
	if called || len(proc.updates) != 0 {
		t.Error("invalid payload reached the processor")
	}

	u := r.fail(context.Background(), &JobPayload{JobID: "j"}, err, 0)
	if u.Status != storage.JobStatusFailed || len(proc.updates) != 1 {
		t.Errorf("fail() = %+v, updates %d", u, len(proc.updates))
	}
}
