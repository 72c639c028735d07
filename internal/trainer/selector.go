package trainer

import (
	"math"

	"github.com/TaffyWrinkle/CameraTraps/internal/checkpoints"
	"github.com/TaffyWrinkle/CameraTraps/internal/model"
	"github.com/TaffyWrinkle/CameraTraps/internal/optim"
)

// CheckpointSelector tracks the best validation top-1 accuracy seen so
// far and persists the full training state whenever it improves. The
// best score starts at negative infinity, so the first epoch always
// produces a snapshot. Ties and regressions are no-ops.
type CheckpointSelector struct {
	best   float64
	path   string
	saver  *checkpoints.Saver
	record *checkpoints.Checkpoint
}

// NewCheckpointSelector creates a selector persisting to path.
func NewCheckpointSelector(path string) *CheckpointSelector {
	return &CheckpointSelector{
		best:  math.Inf(-1),
		path:  path,
		saver: checkpoints.NewSaver(),
	}
}

// Consider compares valAccTop1 against the held best. On strict
// improvement it replaces the held record and overwrites the persisted
// snapshot, returning true.
func (s *CheckpointSelector) Consider(epoch int, valAccTop1 float64, m model.Model, opt optim.Optimizer) (bool, error) {
	if valAccTop1 <= s.best {
		return false, nil
	}
	cp := &checkpoints.Checkpoint{
		Weights: checkpoints.ExtractWeights(m.Parameters()),
		TrainingState: checkpoints.TrainingState{
			Epoch:      epoch,
			ValAccTop1: valAccTop1,
		},
	}
	if opt != nil {
		state := opt.StateDict()
		cp.OptimizerState = &state
	}
	if err := s.saver.Save(cp, s.path); err != nil {
		return false, err
	}
	s.best = valAccTop1
	s.record = cp
	return true, nil
}

// Best returns the best validation top-1 accuracy seen so far.
func (s *CheckpointSelector) Best() float64 { return s.best }

// Record returns the held best checkpoint, nil before the first save.
func (s *CheckpointSelector) Record() *checkpoints.Checkpoint { return s.record }

// Path returns the snapshot location.
func (s *CheckpointSelector) Path() string { return s.path }
