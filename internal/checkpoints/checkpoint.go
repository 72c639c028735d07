// Package checkpoints persists model and optimizer state as a JSON
// snapshot. Exactly one best-model snapshot exists per run; saving to the
// same path overwrites the previous one.
package checkpoints

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/TaffyWrinkle/CameraTraps/internal/model"
	"github.com/TaffyWrinkle/CameraTraps/internal/optim"
)

// Checkpoint is a complete training snapshot: model weights, optimizer
// state, and the epoch bookkeeping needed to compare runs.
type Checkpoint struct {
	Weights        []WeightTensor `json:"weights"`
	TrainingState  TrainingState  `json:"training_state"`
	OptimizerState *optim.State   `json:"optimizer_state,omitempty"`
	Metadata       Metadata       `json:"metadata"`
}

// WeightTensor is one model parameter with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// TrainingState records where in the run the snapshot was taken.
type TrainingState struct {
	Epoch      int     `json:"epoch"`
	ValAccTop1 float64 `json:"val_acc_top1"`
}

// Metadata describes the snapshot itself.
type Metadata struct {
	Version   string    `json:"version"`
	Framework string    `json:"framework"`
	CreatedAt time.Time `json:"created_at"`
}

// Saver saves and loads checkpoints.
type Saver struct{}

func NewSaver() *Saver {
	return &Saver{}
}

// Save writes the checkpoint to path, overwriting any existing snapshot.
// The bytes go to a temporary file in the same directory first and are
// renamed into place, so a failed or interrupted save leaves any previous
// snapshot intact.
func (s *Saver) Save(cp *Checkpoint, path string) error {
	if cp.Metadata.Framework == "" {
		cp.Metadata.Framework = "cameratraps"
		cp.Metadata.Version = "1.0.0"
		cp.Metadata.CreatedAt = time.Now()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "create checkpoint file")
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		tmp.Close()
		return errors.Wrap(err, "encode checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "write checkpoint")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "replace checkpoint")
	}
	return nil
}

// Load reads a checkpoint from path.
func (s *Saver) Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open checkpoint file")
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, errors.Wrap(err, "decode checkpoint")
	}
	return &cp, nil
}

// ExtractWeights copies every model parameter into serializable tensors.
func ExtractWeights(params []*model.Parameter) []WeightTensor {
	weights := make([]WeightTensor, 0, len(params))
	for _, p := range params {
		r, c := p.Value.Dims()
		weights = append(weights, WeightTensor{
			Name:  p.Name,
			Shape: []int{r, c},
			Data:  append([]float64(nil), p.Value.RawMatrix().Data...),
		})
	}
	return weights
}

// LoadWeights copies saved tensors back into matching model parameters.
// Every parameter must have a saved tensor of the same name and shape.
func LoadWeights(weights []WeightTensor, params []*model.Parameter) error {
	byName := make(map[string]WeightTensor, len(weights))
	for _, w := range weights {
		byName[w.Name] = w
	}
	for _, p := range params {
		w, ok := byName[p.Name]
		if !ok {
			return errors.Errorf("checkpoint missing weight %s", p.Name)
		}
		r, c := p.Value.Dims()
		if len(w.Shape) != 2 || w.Shape[0] != r || w.Shape[1] != c {
			return errors.Errorf("shape mismatch for weight %s: checkpoint %v, model [%d %d]",
				p.Name, w.Shape, r, c)
		}
		if len(w.Data) != r*c {
			return errors.Errorf("data size mismatch for weight %s: %d values for shape %v",
				p.Name, len(w.Data), w.Shape)
		}
		p.Value.Copy(mat.NewDense(r, c, append([]float64(nil), w.Data...)))
	}
	return nil
}
