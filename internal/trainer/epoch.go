package trainer

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/TaffyWrinkle/CameraTraps/internal/metrics"
	"github.com/TaffyWrinkle/CameraTraps/internal/model"
	"github.com/TaffyWrinkle/CameraTraps/internal/optim"
)

// BatchSource streams one epoch of batches as an ordered blocking
// sequence. dataset.Loader satisfies it.
type BatchSource interface {
	Epoch(ctx context.Context) (<-chan model.Batch, <-chan error)
}

// EpochRunner consumes one full pass of batches, updating model state in
// Train mode or only measuring in Eval mode.
//
// Loss is optional: metrics-only evaluation is legal without one. The
// Finetune flag keeps the model in inference-style internals during Train
// mode while gradients still flow to the trainable parameter subset.
type EpochRunner struct {
	Model     model.Model
	Loss      model.Loss
	Optimizer optim.Optimizer
	TopK      []int
	Finetune  bool
}

// Run executes one epoch in the given mode and returns the aggregated
// metrics: "loss" (when a loss is configured) then "acc_top{k}" per
// configured k. Any forward/backward failure, non-finite loss, or batch
// delivery error is fatal.
func (r *EpochRunner) Run(ctx context.Context, mode model.Mode, source BatchSource) (*metrics.EpochMetrics, error) {
	if mode == model.Train {
		if r.Optimizer == nil {
			return nil, errors.New("trainer: train mode requires an optimizer")
		}
		if r.Loss == nil {
			return nil, errors.New("trainer: train mode requires a loss function")
		}
	}

	// Finetuning trains with eval-time internals: gradients stay on for
	// the trainable subset, dropout and friends stay off.
	if mode == model.Train && !r.Finetune {
		r.Model.SetMode(model.Train)
	} else {
		r.Model.SetMode(model.Eval)
	}

	var lossMeter metrics.Meter
	accMeters := make([]metrics.Meter, len(r.TopK))

	batches, errCh := source.Epoch(ctx)
	for batches != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case batch, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			if err := r.step(mode, batch, &lossMeter, accMeters); err != nil {
				return nil, err
			}
		}
	}

	em := metrics.NewEpochMetrics()
	if r.Loss != nil {
		em.Set(metrics.LossKey, lossMeter.Avg())
	}
	for i, k := range r.TopK {
		em.Set(metrics.AccTopKey(k), accMeters[i].Avg())
	}
	return em, nil
}

// step processes one batch: forward, optional loss, exactly one optimizer
// step in Train mode, and top-K bookkeeping.
func (r *EpochRunner) step(mode model.Mode, batch model.Batch, lossMeter *metrics.Meter, accMeters []metrics.Meter) error {
	n := batch.Size()
	if n == 0 {
		return errors.New("trainer: empty batch")
	}

	scores := r.Model.Forward(batch.Inputs)

	if r.Loss != nil {
		lossVal := r.Loss.Forward(scores, batch.Targets)
		if math.IsNaN(lossVal) || math.IsInf(lossVal, 0) {
			return errors.Errorf("trainer: non-finite loss %v", lossVal)
		}
		lossMeter.Update(lossVal, n)

		if mode == model.Train {
			r.Optimizer.ZeroGrad()
			r.Model.Backward(r.Loss.Backward(scores, batch.Targets))
			r.Optimizer.Step()
		}
	}

	counts, err := metrics.TopKCorrect(scores, batch.Targets, r.TopK)
	if err != nil {
		return err
	}
	for i, count := range counts {
		accMeters[i].Update(float64(count)*100/float64(n), n)
	}
	return nil
}
