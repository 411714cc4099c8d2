package storage

import (
	"context"
	"testing"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// recordingPoints records Delete and Upsert calls. The embedded interface
// panics on any other method.
type recordingPoints struct {
	qdrant.PointsClient
	calls   []string
	deletes []*qdrant.DeletePoints
	upserts []*qdrant.UpsertPoints
}

func (r *recordingPoints) Delete(ctx context.Context, in *qdrant.DeletePoints, opts ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	r.calls = append(r.calls, "delete")
	r.deletes = append(r.deletes, in)
	return &qdrant.PointsOperationResponse{}, nil
}

func (r *recordingPoints) Upsert(ctx context.Context, in *qdrant.UpsertPoints, opts ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	r.calls = append(r.calls, "upsert")
	r.upserts = append(r.upserts, in)
	return &qdrant.PointsOperationResponse{}, nil
}

func TestReplaceLineVectors(t *testing.T) {
	rec := &recordingPoints{}
	q := &QdrantClient{client: rec, collectionName: "docparse_lines", dimensions: 3}

	points := []*VectorPoint{
		{ID: "7b0c5f0e-0000-5000-8000-000000000001", Vector: []float32{1, 0, 0}, Metadata: map[string]interface{}{"page": 1, "text_type": "Q"}},
		{ID: "7b0c5f0e-0000-5000-8000-000000000002", Vector: []float32{0, 1, 0}, Metadata: map[string]interface{}{"page": 2}},
	}
	if err := q.ReplaceLineVectors(context.Background(), "scans/a_parsed.json", points); err != nil {
		t.Fatalf("ReplaceLineVectors() error = %v", err)
	}

	if len(rec.calls) != 2 || rec.calls[0] != "delete" || rec.calls[1] != "upsert" {
		t.Fatalf("calls = %v, want [delete upsert]", rec.calls)
	}

	filter := rec.deletes[0].GetPoints().GetFilter()
	field := filter.GetMust()[0].GetField()
	if field.GetKey() != ArtifactPathKey || field.GetMatch().GetKeyword() != "scans/a_parsed.json" {
		t.Errorf("delete filter = %v", filter)
	}
	if !rec.deletes[0].GetWait() || !rec.upserts[0].GetWait() {
		t.Error("delete and upsert should wait for the write")
	}

	up := rec.upserts[0].GetPoints()
	if len(up) != 2 {
		t.Fatalf("upserted %d points, want 2", len(up))
	}
	payload := up[0].GetPayload()
	if payload[ArtifactPathKey].GetStringValue() != "scans/a_parsed.json" {
		t.Errorf("payload artifact path = %v", payload[ArtifactPathKey])
	}
	if payload["page"].GetIntegerValue() != 1 || payload["text_type"].GetStringValue() != "Q" {
		t.Errorf("payload = %v", payload)
	}
}

func TestReplaceLineVectorsRejectsBadPoints(t *testing.T) {
	tests := []struct {
		name  string
		point *VectorPoint
	}{
		{"missing id", &VectorPoint{Vector: []float32{1, 2, 3}}},
		{"wrong dimensions", &VectorPoint{ID: "x", Vector: []float32{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingPoints{}
			q := &QdrantClient{client: rec, collectionName: "c", dimensions: 3}
			if err := q.ReplaceLineVectors(context.Background(), "a.json", []*VectorPoint{tt.point}); err == nil {
				t.Fatal("ReplaceLineVectors() error = nil")
			}
			if len(rec.upserts) != 0 {
				t.Error("upsert issued for an invalid point")
			}
		})
	}
}

func TestReplaceLineVectorsEmptyOnlyDeletes(t *testing.T) {
	rec := &recordingPoints{}
	q := &QdrantClient{client: rec, collectionName: "c", dimensions: 3}
	if err := q.ReplaceLineVectors(context.Background(), "a.json", nil); err != nil {
		t.Fatalf("ReplaceLineVectors() error = %v", err)
	}
	if len(rec.deletes) != 1 || len(rec.upserts) != 0 {
		t.Errorf("calls = %v, want a single delete", rec.calls)
	}
}
