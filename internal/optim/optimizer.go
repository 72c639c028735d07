// Package optim provides gradient-descent optimizers over model parameters.
// An optimizer is constructed once from the model's parameter list and
// steps only the parameters marked trainable; that set never changes for
// the lifetime of a run.
package optim

import "github.com/TaffyWrinkle/CameraTraps/internal/model"

// Optimizer applies parameter updates from accumulated gradients.
type Optimizer interface {
	// ZeroGrad clears the gradient accumulators of the held parameters.
	ZeroGrad()

	// Step applies exactly one update from the current gradients.
	Step()

	// StateDict returns the optimizer configuration and state buffers for
	// checkpointing.
	StateDict() State
}

// State is a serializable snapshot of optimizer hyperparameters and
// per-parameter buffers.
type State struct {
	Type        string             `json:"type"`
	Hyperparams map[string]float64 `json:"hyperparams"`
	Buffers     []Buffer           `json:"buffers,omitempty"`
}

// Buffer is one optimizer state tensor (momentum, square average, ...).
type Buffer struct {
	Param string    `json:"param"`
	Kind  string    `json:"kind"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

func trainable(params []*model.Parameter) []*model.Parameter {
	out := make([]*model.Parameter, 0, len(params))
	for _, p := range params {
		if p.Trainable {
			out = append(out, p)
		}
	}
	return out
}

func zeroGrads(params []*model.Parameter) {
	for _, p := range params {
		data := p.Grad.RawMatrix().Data
		for i := range data {
			data[i] = 0
		}
	}
}

func bufferFor(p *model.Parameter, kind string, data []float64) Buffer {
	r, c := p.Value.Dims()
	return Buffer{Param: p.Name, Kind: kind, Shape: []int{r, c}, Data: data}
}
