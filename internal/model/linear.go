package model

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is a softmax linear classifier: scores = inputs·Wᵀ + b.
type Linear struct {
	weight *Parameter // C x D
	bias   *Parameter // 1 x C

	lastInputs *mat.Dense
}

// NewLinear constructs the model with small random weights and zero bias.
func NewLinear(numClasses, inputSize int, rng *rand.Rand) *Linear {
	return &Linear{
		weight: newParam("fc.weight", numClasses, inputSize, initWeights(rng, numClasses*inputSize), true),
		bias:   newParam("fc.bias", 1, numClasses, nil, true),
	}
}

func (m *Linear) Forward(inputs *mat.Dense) *mat.Dense {
	n, _ := inputs.Dims()
	numClasses, _ := m.weight.Value.Dims()
	scores := mat.NewDense(n, numClasses, nil)
	scores.Mul(inputs, m.weight.Value.T())
	bias := m.bias.Value.RawRowView(0)
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		for c := range row {
			row[c] += bias[c]
		}
	}
	m.lastInputs = inputs
	return scores
}

func (m *Linear) Backward(dScores *mat.Dense) {
	if m.lastInputs == nil {
		return
	}
	accumulateLinearGrads(m.weight, m.bias, m.lastInputs, dScores)
}

func (m *Linear) Parameters() []*Parameter {
	return []*Parameter{m.weight, m.bias}
}

// SetMode is a no-op: a linear model has no train-only internals.
func (m *Linear) SetMode(Mode) {}

// accumulateLinearGrads adds dScoresᵀ·inputs into weight.Grad and the
// per-class column sums of dScores into bias.Grad, honoring Trainable.
func accumulateLinearGrads(weight, bias *Parameter, inputs, dScores *mat.Dense) {
	if weight.Trainable {
		var dW mat.Dense
		dW.Mul(dScores.T(), inputs)
		weight.Grad.Add(weight.Grad, &dW)
	}
	if bias.Trainable {
		n, c := dScores.Dims()
		grad := bias.Grad.RawRowView(0)
		for i := 0; i < n; i++ {
			row := dScores.RawRowView(i)
			for j := 0; j < c; j++ {
				grad[j] += row[j]
			}
		}
	}
}
