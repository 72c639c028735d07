package model

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func testBatch() (*mat.Dense, []int) {
	inputs := mat.NewDense(2, 4, []float64{
		0.1, 0.2, 0.3, 0.4,
		0.4, 0.3, 0.2, 0.1,
	})
	return inputs, []int{1, 2}
}

func TestLinearTrainingReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := NewLinear(3, 4, rng)
	loss := NewCrossEntropy()
	inputs, targets := testBatch()

	first := loss.Forward(m.Forward(inputs), targets)
	for i := 0; i < 20; i++ {
		scores := m.Forward(inputs)
		dScores := loss.Backward(scores, targets)
		for _, p := range m.Parameters() {
			data := p.Grad.RawMatrix().Data
			for j := range data {
				data[j] = 0
			}
		}
		m.Backward(dScores)
		for _, p := range m.Parameters() {
			value := p.Value.RawMatrix().Data
			grad := p.Grad.RawMatrix().Data
			for j := range value {
				value[j] -= 0.5 * grad[j]
			}
		}
	}
	last := loss.Forward(m.Forward(inputs), targets)
	if last >= first {
		t.Fatalf("expected loss to decrease; first=%f last=%f", first, last)
	}
}

func TestLinearGradientsMatchFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := NewLinear(2, 3, rng)
	loss := NewCrossEntropy()
	inputs := mat.NewDense(2, 3, []float64{
		0.5, -0.2, 0.8,
		-0.1, 0.4, 0.3,
	})
	targets := []int{0, 1}

	params := m.Parameters()
	var x []float64
	for _, p := range params {
		x = append(x, p.Value.RawMatrix().Data...)
	}

	setParams := func(v []float64) {
		off := 0
		for _, p := range params {
			data := p.Value.RawMatrix().Data
			copy(data, v[off:off+len(data)])
			off += len(data)
		}
	}

	f := func(v []float64) float64 {
		setParams(v)
		return loss.Forward(m.Forward(inputs), targets)
	}

	numeric := fd.Gradient(nil, f, x, nil)

	setParams(x)
	scores := m.Forward(inputs)
	m.Backward(loss.Backward(scores, targets))
	var analytic []float64
	for _, p := range params {
		analytic = append(analytic, p.Grad.RawMatrix().Data...)
	}

	for i := range analytic {
		if math.Abs(analytic[i]-numeric[i]) > 1e-6 {
			t.Fatalf("gradient mismatch at %d: analytic=%g numeric=%g", i, analytic[i], numeric[i])
		}
	}
}

func TestCrossEntropyKnownValue(t *testing.T) {
	loss := NewCrossEntropy()
	// Uniform scores: loss is ln(C) regardless of target.
	scores := mat.NewDense(1, 4, []float64{2, 2, 2, 2})
	got := loss.Forward(scores, []int{2})
	want := math.Log(4)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("loss = %f, want %f", got, want)
	}
}

func TestNewRejectsUnknownModel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := New("efficientnet-b0", 10, 16, false, rng); err == nil {
		t.Fatal("expected error for unknown model name")
	}
	if _, err := New("linear", 10, 16, false, rng); err != nil {
		t.Fatalf("linear should construct: %v", err)
	}
	if _, err := New("mlp", 10, 16, false, rng); err != nil {
		t.Fatalf("mlp should construct: %v", err)
	}
}
