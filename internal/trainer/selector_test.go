package trainer

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/TaffyWrinkle/CameraTraps/internal/checkpoints"
	"github.com/TaffyWrinkle/CameraTraps/internal/model"
)

func newSelectorFixture(t *testing.T) (*CheckpointSelector, model.Model) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint_best_model.json")
	rng := rand.New(rand.NewSource(7))
	mdl, err := model.New("linear", 3, 4, false, rng)
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	return NewCheckpointSelector(path), mdl
}

func TestSelectorSavesFirstEpoch(t *testing.T) {
	sel, mdl := newSelectorFixture(t)
	if !math.IsInf(sel.Best(), -1) {
		t.Fatalf("fresh selector best = %f, want -Inf", sel.Best())
	}

	saved, err := sel.Consider(1, 62.5, mdl, nil)
	if err != nil {
		t.Fatalf("Consider: %v", err)
	}
	if !saved {
		t.Fatal("first epoch must always produce a snapshot")
	}
	if sel.Best() != 62.5 {
		t.Fatalf("best = %f, want 62.5", sel.Best())
	}
	if _, err := os.Stat(sel.Path()); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
}

func TestSelectorIgnoresRegressionAndTie(t *testing.T) {
	sel, mdl := newSelectorFixture(t)
	if _, err := sel.Consider(1, 62.5, mdl, nil); err != nil {
		t.Fatalf("Consider: %v", err)
	}

	saved, err := sel.Consider(2, 60.0, mdl, nil)
	if err != nil {
		t.Fatalf("Consider: %v", err)
	}
	if saved {
		t.Fatal("regression must not overwrite the snapshot")
	}
	saved, err = sel.Consider(3, 62.5, mdl, nil)
	if err != nil {
		t.Fatalf("Consider: %v", err)
	}
	if saved {
		t.Fatal("tie must not overwrite the snapshot")
	}

	cp, err := checkpoints.NewSaver().Load(sel.Path())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.TrainingState.Epoch != 1 {
		t.Fatalf("persisted epoch = %d, want 1", cp.TrainingState.Epoch)
	}
}

func TestSelectorReplacesOnImprovement(t *testing.T) {
	sel, mdl := newSelectorFixture(t)
	if _, err := sel.Consider(1, 62.5, mdl, nil); err != nil {
		t.Fatalf("Consider: %v", err)
	}

	saved, err := sel.Consider(2, 70.0, mdl, nil)
	if err != nil {
		t.Fatalf("Consider: %v", err)
	}
	if !saved {
		t.Fatal("strict improvement must produce a snapshot")
	}

	cp, err := checkpoints.NewSaver().Load(sel.Path())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.TrainingState.Epoch != 2 || cp.TrainingState.ValAccTop1 != 70.0 {
		t.Fatalf("persisted state = %+v, want epoch 2 at 70.0", cp.TrainingState)
	}
	if sel.Record() == nil || sel.Record().TrainingState.Epoch != 2 {
		t.Fatal("held record not replaced")
	}
}
