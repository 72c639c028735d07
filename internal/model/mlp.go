package model

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const defaultHiddenSize = 256

// fraction of hidden activations dropped in train mode.
const dropoutRate = 0.2

// MLP is a one-hidden-layer ReLU classifier with dropout on the hidden
// activations. Dropout is active only in Train mode; Eval mode (and
// therefore finetuning, which runs with eval-time internals) uses the
// full activations.
type MLP struct {
	w1 *Parameter // H x D
	b1 *Parameter // 1 x H
	w2 *Parameter // C x H
	b2 *Parameter // 1 x C

	mode Mode
	rng  *rand.Rand

	lastInputs *mat.Dense
	lastHidden *mat.Dense // post-ReLU, post-dropout
	reluMask   []bool
	dropMask   []float64
}

// NewMLP constructs the model. With finetune set, only the output layer
// parameters are trainable; the hidden layer is frozen at construction.
func NewMLP(numClasses, inputSize, hiddenSize int, finetune bool, rng *rand.Rand) *MLP {
	if hiddenSize <= 0 {
		hiddenSize = defaultHiddenSize
	}
	return &MLP{
		w1:   newParam("hidden.weight", hiddenSize, inputSize, initWeights(rng, hiddenSize*inputSize), !finetune),
		b1:   newParam("hidden.bias", 1, hiddenSize, nil, !finetune),
		w2:   newParam("fc.weight", numClasses, hiddenSize, initWeights(rng, numClasses*hiddenSize), true),
		b2:   newParam("fc.bias", 1, numClasses, nil, true),
		mode: Eval,
		rng:  rng,
	}
}

func (m *MLP) Forward(inputs *mat.Dense) *mat.Dense {
	n, _ := inputs.Dims()
	hiddenSize, _ := m.w1.Value.Dims()

	hidden := mat.NewDense(n, hiddenSize, nil)
	hidden.Mul(inputs, m.w1.Value.T())
	b1 := m.b1.Value.RawRowView(0)
	m.reluMask = make([]bool, n*hiddenSize)
	for i := 0; i < n; i++ {
		row := hidden.RawRowView(i)
		for j := range row {
			row[j] += b1[j]
			if row[j] > 0 {
				m.reluMask[i*hiddenSize+j] = true
			} else {
				row[j] = 0
			}
		}
	}

	m.dropMask = nil
	if m.mode == Train {
		keep := 1 - dropoutRate
		m.dropMask = make([]float64, n*hiddenSize)
		for i := range m.dropMask {
			if m.rng.Float64() < keep {
				m.dropMask[i] = 1 / keep
			}
		}
		for i := 0; i < n; i++ {
			row := hidden.RawRowView(i)
			for j := range row {
				row[j] *= m.dropMask[i*hiddenSize+j]
			}
		}
	}

	numClasses, _ := m.w2.Value.Dims()
	scores := mat.NewDense(n, numClasses, nil)
	scores.Mul(hidden, m.w2.Value.T())
	b2 := m.b2.Value.RawRowView(0)
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		for c := range row {
			row[c] += b2[c]
		}
	}

	m.lastInputs = inputs
	m.lastHidden = hidden
	return scores
}

func (m *MLP) Backward(dScores *mat.Dense) {
	if m.lastInputs == nil || m.lastHidden == nil {
		return
	}
	accumulateLinearGrads(m.w2, m.b2, m.lastHidden, dScores)

	if !m.w1.Trainable && !m.b1.Trainable {
		return
	}

	var dHidden mat.Dense
	dHidden.Mul(dScores, m.w2.Value)
	n, hiddenSize := dHidden.Dims()
	for i := 0; i < n; i++ {
		row := dHidden.RawRowView(i)
		for j := range row {
			idx := i*hiddenSize + j
			if m.dropMask != nil {
				row[j] *= m.dropMask[idx]
			}
			if !m.reluMask[idx] {
				row[j] = 0
			}
		}
	}
	accumulateLinearGrads(m.w1, m.b1, m.lastInputs, &dHidden)
}

func (m *MLP) Parameters() []*Parameter {
	return []*Parameter{m.w1, m.b1, m.w2, m.b2}
}

func (m *MLP) SetMode(mode Mode) {
	m.mode = mode
}
