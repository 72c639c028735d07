package optim

import "github.com/TaffyWrinkle/CameraTraps/internal/model"

// SGDConfig carries plain stochastic-gradient-descent hyperparameters.
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
}

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	cfg      SGDConfig
	params   []*model.Parameter
	momentum [][]float64
}

// NewSGD builds the optimizer over the trainable subset of params.
func NewSGD(params []*model.Parameter, cfg SGDConfig) *SGD {
	held := trainable(params)
	o := &SGD{
		cfg:      cfg,
		params:   held,
		momentum: make([][]float64, len(held)),
	}
	for i, p := range held {
		o.momentum[i] = make([]float64, len(p.Value.RawMatrix().Data))
	}
	return o
}

func (o *SGD) ZeroGrad() {
	zeroGrads(o.params)
}

func (o *SGD) Step() {
	for i, p := range o.params {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		buf := o.momentum[i]
		for j := range value {
			g := grad[j] + o.cfg.WeightDecay*value[j]
			if o.cfg.Momentum > 0 {
				buf[j] = o.cfg.Momentum*buf[j] + g
				g = buf[j]
			}
			value[j] -= o.cfg.LearningRate * g
		}
	}
}

func (o *SGD) StateDict() State {
	s := State{
		Type: "sgd",
		Hyperparams: map[string]float64{
			"lr":           o.cfg.LearningRate,
			"momentum":     o.cfg.Momentum,
			"weight_decay": o.cfg.WeightDecay,
		},
	}
	if o.cfg.Momentum > 0 {
		for i, p := range o.params {
			s.Buffers = append(s.Buffers, bufferFor(p, "momentum", append([]float64(nil), o.momentum[i]...)))
		}
	}
	return s
}
