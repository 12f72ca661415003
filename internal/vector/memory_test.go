package vector

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, []string{"a", "b", "c"}, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("unexpected order: %s, %s", results[0].ID, results[1].ID)
	}
}

func TestMemoryIndex_SearchBounds(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y", "z"}, [][]float32{{1, 0}, {0, 1}, {0.7, 0.7}})

	tests := []struct {
		k    int
		want int
	}{{0, 0}, {-1, 0}, {2, 2}, {10, 3}}
	for _, tt := range tests {
		res, err := idx.Search(ctx, []float32{0.6, 0.8}, tt.k)
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != tt.want {
			t.Errorf("k=%d: got %d results, want %d", tt.k, len(res), tt.want)
		}
		for i := 1; i < len(res); i++ {
			if res[i].Score > res[i-1].Score {
				t.Errorf("k=%d: scores not non-increasing at %d", tt.k, i)
			}
		}
	}
}

func TestMemoryIndex_dimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	if err := idx.Add(context.Background(), []string{"x"}, [][]float32{{1, 0, 0}}); err == nil {
		t.Error("expected add dimension error")
	}
	if idx.Size() != 0 {
		t.Error("failed add must not partially insert")
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 1); err == nil {
		t.Error("expected search dimension error")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "guidelines.idx")
	ctx := context.Background()

	idx, _ := NewMemoryIndex(2)
	_ = idx.Add(ctx, []string{"ch15.pdf#0", "ch15.pdf#1"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	ids := loaded.IDs()
	if len(ids) != 2 || ids[0] != "ch15.pdf#0" || ids[1] != "ch15.pdf#1" {
		t.Errorf("loaded ids = %v", ids)
	}
	res, _ := loaded.Search(ctx, []float32{0, 1}, 1)
	if res[0].ID != "ch15.pdf#1" {
		t.Errorf("top result after load = %s", res[0].ID)
	}
}

func TestMemoryIndex_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, _ := NewMemoryIndex(2)
	if err := idx.Load(filepath.Join(dir, "missing.idx")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: got %v, want os.ErrNotExist", err)
	}

	good := filepath.Join(dir, "good.idx")
	_ = idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	if err := idx.Save(good); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(good)

	truncated := filepath.Join(dir, "truncated.idx")
	_ = os.WriteFile(truncated, data[:len(data)-3], 0644)
	trailing := filepath.Join(dir, "trailing.idx")
	_ = os.WriteFile(trailing, append(append([]byte{}, data...), 0x01), 0644)
	garbage := filepath.Join(dir, "garbage.idx")
	_ = os.WriteFile(garbage, []byte("not an index"), 0644)

	for _, p := range []string{truncated, trailing, garbage} {
		fresh, _ := NewMemoryIndex(2)
		if err := fresh.Load(p); !errors.Is(err, ErrCorruptIndex) {
			t.Errorf("%s: got %v, want ErrCorruptIndex", filepath.Base(p), err)
		}
	}

	wrongDim, _ := NewMemoryIndex(3)
	if err := wrongDim.Load(good); !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("dimension mismatch: got %v, want ErrCorruptIndex", err)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v", v)
	}
	if math.Abs(InnerProduct(v, v)-1) > 1e-6 {
		t.Errorf("normalized self product = %f, want 1", InnerProduct(v, v))
	}
	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
