package optim

import (
	"math"

	"github.com/TaffyWrinkle/CameraTraps/internal/model"
)

// RMSPropConfig carries the RMSProp hyperparameters. The defaults follow
// the EfficientNet training recipe (alpha 0.9, momentum 0.9, weight decay
// 1e-5).
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64
	Momentum     float64
	WeightDecay  float64
	Epsilon      float64
}

// DefaultRMSPropConfig returns the EfficientNet defaults with the batch
// size scaled learning rate lr = 0.016 * batchSize / 256.
func DefaultRMSPropConfig(batchSize int) RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.016 * float64(batchSize) / 256,
		Alpha:        0.9,
		Momentum:     0.9,
		WeightDecay:  1e-5,
		Epsilon:      1e-8,
	}
}

// RMSProp implements root-mean-square propagation with optional momentum
// and decoupled-through-gradient weight decay.
type RMSProp struct {
	cfg    RMSPropConfig
	params []*model.Parameter

	squareAvg [][]float64
	momentum  [][]float64
}

// NewRMSProp builds the optimizer over the trainable subset of params.
func NewRMSProp(params []*model.Parameter, cfg RMSPropConfig) *RMSProp {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-8
	}
	held := trainable(params)
	o := &RMSProp{
		cfg:       cfg,
		params:    held,
		squareAvg: make([][]float64, len(held)),
		momentum:  make([][]float64, len(held)),
	}
	for i, p := range held {
		n := len(p.Value.RawMatrix().Data)
		o.squareAvg[i] = make([]float64, n)
		o.momentum[i] = make([]float64, n)
	}
	return o
}

func (o *RMSProp) ZeroGrad() {
	zeroGrads(o.params)
}

func (o *RMSProp) Step() {
	for i, p := range o.params {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		sq := o.squareAvg[i]
		buf := o.momentum[i]
		for j := range value {
			g := grad[j] + o.cfg.WeightDecay*value[j]
			sq[j] = o.cfg.Alpha*sq[j] + (1-o.cfg.Alpha)*g*g
			update := g / (math.Sqrt(sq[j]) + o.cfg.Epsilon)
			if o.cfg.Momentum > 0 {
				buf[j] = o.cfg.Momentum*buf[j] + update
				update = buf[j]
			}
			value[j] -= o.cfg.LearningRate * update
		}
	}
}

func (o *RMSProp) StateDict() State {
	s := State{
		Type: "rmsprop",
		Hyperparams: map[string]float64{
			"lr":           o.cfg.LearningRate,
			"alpha":        o.cfg.Alpha,
			"momentum":     o.cfg.Momentum,
			"weight_decay": o.cfg.WeightDecay,
			"eps":          o.cfg.Epsilon,
		},
	}
	for i, p := range o.params {
		s.Buffers = append(s.Buffers, bufferFor(p, "square_avg", append([]float64(nil), o.squareAvg[i]...)))
		if o.cfg.Momentum > 0 {
			s.Buffers = append(s.Buffers, bufferFor(p, "momentum", append([]float64(nil), o.momentum[i]...)))
		}
	}
	return s
}
