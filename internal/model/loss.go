package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Loss computes a differentiable scalar from scores and targets. Forward
// returns the mean loss over the batch; Backward returns the gradient of
// that mean with respect to the scores.
type Loss interface {
	Forward(scores *mat.Dense, targets []int) float64
	Backward(scores *mat.Dense, targets []int) *mat.Dense
}

// CrossEntropy is softmax cross-entropy over class scores.
type CrossEntropy struct{}

func NewCrossEntropy() CrossEntropy {
	return CrossEntropy{}
}

func (CrossEntropy) Forward(scores *mat.Dense, targets []int) float64 {
	n, _ := scores.Dims()
	total := 0.0
	for i := 0; i < n; i++ {
		probs := rowSoftmax(scores.RawRowView(i))
		total += -math.Log(math.Max(probs[targets[i]], 1e-9))
	}
	return total / float64(n)
}

func (CrossEntropy) Backward(scores *mat.Dense, targets []int) *mat.Dense {
	n, c := scores.Dims()
	dScores := mat.NewDense(n, c, nil)
	inv := 1 / float64(n)
	for i := 0; i < n; i++ {
		probs := rowSoftmax(scores.RawRowView(i))
		row := dScores.RawRowView(i)
		for j := 0; j < c; j++ {
			row[j] = probs[j] * inv
		}
		row[targets[i]] -= inv
	}
	return dScores
}

func rowSoftmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}
