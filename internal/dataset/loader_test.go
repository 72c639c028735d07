package dataset

import (
	"bytes"
	"context"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TaffyWrinkle/CameraTraps/internal/model"
)

func writeTestImages(t *testing.T, count int) []Sample {
	t.Helper()
	dir := t.TempDir()
	samples := make([]Sample, count)
	for i := range samples {
		path := filepath.Join(dir, "crop", "img"+string(rune('a'+i))+".png")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		buf := &bytes.Buffer{}
		if err := png.Encode(buf, gradientImage(24+i)); err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
		samples[i] = Sample{Path: path, Label: i}
	}
	return samples
}

func collectBatches(t *testing.T, loader *Loader) []model.Batch {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batches, errCh := loader.Epoch(ctx)
	var out []model.Batch
	for batches != nil || errCh != nil {
		select {
		case batch, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			out = append(out, batch)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				t.Fatalf("loader error: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for batches")
		}
	}
	return out
}

func batchTargets(batches []model.Batch) []int {
	var targets []int
	for _, b := range batches {
		targets = append(targets, b.Targets...)
	}
	return targets
}

func TestLoaderOrderedBatchesWithShortTail(t *testing.T) {
	samples := writeTestImages(t, 5)
	loader, err := NewLoader(samples, EvalTransform{}, 2, 3, false, nil)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}

	batches := collectBatches(t, loader)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	sizes := []int{2, 2, 1}
	for i, batch := range batches {
		if batch.Size() != sizes[i] {
			t.Fatalf("batch %d size = %d, want %d", i, batch.Size(), sizes[i])
		}
		rows, cols := batch.Inputs.Dims()
		if rows != sizes[i] || cols != FeatureSize {
			t.Fatalf("batch %d inputs %dx%d, want %dx%d", i, rows, cols, sizes[i], FeatureSize)
		}
	}
	// Despite parallel decoding, delivery follows catalog order.
	targets := batchTargets(batches)
	for i, target := range targets {
		if target != i {
			t.Fatalf("targets out of order: %v", targets)
		}
	}
}

func TestLoaderEvalEpochsIdentical(t *testing.T) {
	samples := writeTestImages(t, 4)
	loader, err := NewLoader(samples, EvalTransform{}, 2, 2, false, nil)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}
	first := batchTargets(collectBatches(t, loader))
	second := batchTargets(collectBatches(t, loader))
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("eval epochs differ: %v vs %v", first, second)
		}
	}
}

func TestLoaderShuffleDeterministicPerSeed(t *testing.T) {
	samples := writeTestImages(t, 6)
	build := func(seed int64) []int {
		loader, err := NewLoader(samples, EvalTransform{}, 2, 2, true, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("NewLoader error: %v", err)
		}
		return batchTargets(collectBatches(t, loader))
	}

	a := build(7)
	b := build(7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different orders: %v vs %v", a, b)
		}
	}

	seen := make(map[int]bool)
	for _, target := range a {
		seen[target] = true
	}
	if len(seen) != len(samples) {
		t.Fatalf("shuffled epoch lost samples: %v", a)
	}
}

func TestLoaderFailsFastOnUnreadableImage(t *testing.T) {
	samples := writeTestImages(t, 2)
	samples = append(samples, Sample{Path: filepath.Join(t.TempDir(), "missing.png"), Label: 0})

	loader, err := NewLoader(samples, EvalTransform{}, 2, 2, false, nil)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batches, errCh := loader.Epoch(ctx)

	var sawErr bool
	for batches != nil || errCh != nil {
		select {
		case _, ok := <-batches:
			if !ok {
				batches = nil
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				sawErr = true
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for loader error")
		}
	}
	if !sawErr {
		t.Fatal("expected a fatal error for the unreadable image")
	}
}

func TestNewLoaderValidation(t *testing.T) {
	samples := []Sample{{Path: "x", Label: 0}}
	if _, err := NewLoader(nil, EvalTransform{}, 2, 1, false, nil); err == nil {
		t.Fatal("expected error for empty sample list")
	}
	if _, err := NewLoader(samples, EvalTransform{}, 0, 1, false, nil); err == nil {
		t.Fatal("expected error for zero batch size")
	}
	if _, err := NewLoader(samples, EvalTransform{}, 2, 1, true, nil); err == nil {
		t.Fatal("expected error for shuffle without RNG")
	}
}
