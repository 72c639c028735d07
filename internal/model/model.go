package model

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Mode selects between train-time and inference-time model internals
// (dropout on/off). It is independent of whether gradients are computed.
type Mode int

const (
	Train Mode = iota
	Eval
)

func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Eval:
		return "eval"
	default:
		return "unknown"
	}
}

// Batch is a minibatch of feature vectors and class targets. The final
// batch of a pass may be smaller than the configured batch size.
type Batch struct {
	Inputs  *mat.Dense // N x D
	Targets []int      // N
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	return len(b.Targets)
}

// Parameter is a named weight tensor with its gradient accumulator.
// Trainable is fixed at model construction; Backward skips gradient
// computation for frozen parameters and optimizers never step them.
type Parameter struct {
	Name      string
	Value     *mat.Dense
	Grad      *mat.Dense
	Trainable bool
}

// Model is a classifier with an explicit forward/backward split so the
// loss function and optimizer remain independent collaborators.
type Model interface {
	// Forward computes class scores [N, C] for inputs [N, D]. Train-mode
	// forward caches the activations needed by Backward.
	Forward(inputs *mat.Dense) *mat.Dense

	// Backward accumulates parameter gradients from dScores [N, C],
	// the gradient of the loss with respect to the last Forward output.
	Backward(dScores *mat.Dense)

	// Parameters returns all parameters in a fixed order.
	Parameters() []*Parameter

	// SetMode switches train-time vs inference-time internals.
	SetMode(Mode)
}

// ValidModels lists the accepted model identifiers.
var ValidModels = []string{"linear", "mlp"}

// New builds a model by identifier. With finetune set, only the final
// classification layer is trainable. An unknown identifier is a
// configuration error.
func New(name string, numClasses, inputSize int, finetune bool, rng *rand.Rand) (Model, error) {
	switch name {
	case "linear":
		return NewLinear(numClasses, inputSize, rng), nil
	case "mlp":
		return NewMLP(numClasses, inputSize, defaultHiddenSize, finetune, rng), nil
	default:
		return nil, errors.Errorf("model: unknown model name %q (valid: %v)", name, ValidModels)
	}
}

func initWeights(rng *rand.Rand, n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * 0.01
	}
	return w
}

func newParam(name string, rows, cols int, data []float64, trainable bool) *Parameter {
	return &Parameter{
		Name:      name,
		Value:     mat.NewDense(rows, cols, data),
		Grad:      mat.NewDense(rows, cols, nil),
		Trainable: trainable,
	}
}
