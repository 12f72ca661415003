package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kansa/internal/models"
)

func TestBleveIndex_IndexSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	chunks := []models.GuidelineChunk{
		{SourceID: "ch15.pdf#0", Text: "The plan of care must be certified by a physician within 30 days."},
		{SourceID: "ch15.pdf#1", Text: "Progress reports are required at least once every 10 treatment days."},
		{SourceID: "ch15.pdf#2", Text: "Maintenance therapy may be covered when skilled services are needed."},
	}
	if err := idx.IndexChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	n, err := idx.DocCount()
	if err != nil || n != 3 {
		t.Fatalf("DocCount = %d, %v", n, err)
	}

	res, err := idx.Search(ctx, "progress reports", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) == 0 || res[0].ID != "ch15.pdf#1" {
		t.Fatalf("expected ch15.pdf#1 first, got %+v", res)
	}

	res, _ = idx.Search(ctx, "certified", 0)
	if len(res) != 0 {
		t.Errorf("limit 0 should return nothing, got %d", len(res))
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, _ := reopened.DocCount(); n != 3 {
		t.Errorf("reopened DocCount = %d, want 3", n)
	}
}

func TestNormalizeScores(t *testing.T) {
	res := []*KeywordResult{{ID: "a", Score: 4}, {ID: "b", Score: 2}}
	NormalizeScores(res)
	if res[0].Score != 1 || res[1].Score != 0.5 {
		t.Errorf("got %v %v", res[0].Score, res[1].Score)
	}
	zero := []*KeywordResult{{ID: "a", Score: 0}}
	NormalizeScores(zero)
	if zero[0].Score != 0 {
		t.Error("zero scores stay zero")
	}
}
