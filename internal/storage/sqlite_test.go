package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hyperjump/kansa/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorage_GuidelineCache(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	chunks, states, err := store.LoadGuidelineCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 || len(states) != 0 {
		t.Fatalf("fresh cache should be empty, got %d chunks %d states", len(chunks), len(states))
	}

	first := []models.GuidelineChunk{
		{SourceID: "ch15.pdf#0", Text: "Therapy must be skilled."},
		{SourceID: "ch15.pdf#1", Text: "Plan of care must be certified."},
	}
	st := []models.SourceState{{Path: "/g/ch15.pdf", Checksum: "abc", Size: 10, ModTime: time.Now().UTC()}}
	if err := store.ReplaceGuidelineCache(ctx, first, st); err != nil {
		t.Fatal(err)
	}

	second := []models.GuidelineChunk{{SourceID: "lcd.txt#0", Text: "Maintenance therapy."}}
	st2 := []models.SourceState{
		{Path: "/g/ch15.pdf", Checksum: "def", Size: 11},
		{Path: "/g/lcd.txt", Checksum: "", Size: 0},
	}
	if err := store.ReplaceGuidelineCache(ctx, second, st2); err != nil {
		t.Fatal(err)
	}

	chunks, states, err = store.LoadGuidelineCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunks, second) {
		t.Errorf("chunks = %+v, want %+v", chunks, second)
	}
	if len(states) != 2 || states[0].Checksum != "def" || states[1].Path != "/g/lcd.txt" {
		t.Errorf("states = %+v", states)
	}
}

func TestSQLiteStorage_Analyses(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := models.TherapyDocument{ID: "doc:1", Text: "note", Discipline: "pt", DocumentType: "progress_note"}
	older := models.NewComplianceResult(doc, "rules", nil)
	older.AnalyzedAt = time.Now().UTC().Add(-time.Hour)
	newer := models.NewComplianceResult(doc, "hybrid", []models.ComplianceFinding{
		{Source: models.SourceRule, RuleURI: "r:MissingSignature", Title: "Signature missing", RiskLevel: "finding"},
	})

	for _, r := range []*models.ComplianceResult{older, newer} {
		if err := store.SaveAnalysis(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.CountAnalyses(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountAnalyses = %d, %v", n, err)
	}

	list, err := store.ListAnalyses(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != newer.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[0].IsCompliant || list[0].FindingCount != 1 || list[1].Mode != "rules" {
		t.Errorf("unexpected records: %+v %+v", list[0], list[1])
	}

	got, err := store.GetAnalysis(ctx, newer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Findings[0].RuleURI != "r:MissingSignature" || got.IsCompliant {
		t.Errorf("unexpected stored result: %+v", got)
	}

	if _, err := store.GetAnalysis(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAnalysis(missing) = %v, want ErrNotFound", err)
	}
}
