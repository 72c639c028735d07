// Package telemetry records per-epoch metrics and the end-of-run summary
// into the run directory.
package telemetry

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Metric is one recorded data point.
type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// Recorder receives metric values as they are produced.
type Recorder interface {
	Record(name string, value float64, epoch int) error
	Close() error
}

// FileRecorder appends one JSON object per metric to a stream file.
type FileRecorder struct {
	file    *os.File
	encoder *json.Encoder
}

// NewFileRecorder creates (or truncates) the metrics stream at path.
func NewFileRecorder(path string) (*FileRecorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics stream")
	}
	return &FileRecorder{file: file, encoder: json.NewEncoder(file)}, nil
}

func (r *FileRecorder) Record(name string, value float64, epoch int) error {
	m := Metric{
		Key:       name,
		Value:     value,
		Timestamp: time.Now().UnixMilli(),
		Step:      int64(epoch),
	}
	if err := r.encoder.Encode(m); err != nil {
		return errors.Wrapf(err, "record metric %s", name)
	}
	return nil
}

func (r *FileRecorder) Close() error {
	return r.file.Close()
}

// LogRecorder writes metrics to the process log.
type LogRecorder struct{}

func (LogRecorder) Record(name string, value float64, epoch int) error {
	log.Printf("epoch=%d %s=%.4f", epoch, name, value)
	return nil
}

func (LogRecorder) Close() error { return nil }

// MultiRecorder fans out to several recorders.
type MultiRecorder []Recorder

func (mr MultiRecorder) Record(name string, value float64, epoch int) error {
	for _, r := range mr {
		if err := r.Record(name, value, epoch); err != nil {
			return err
		}
	}
	return nil
}

func (mr MultiRecorder) Close() error {
	var first error
	for _, r := range mr {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Summary joins the run's hyperparameters with the best epoch's metrics.
type Summary struct {
	Hyperparams map[string]interface{} `json:"hyperparams"`
	Metrics     map[string]float64     `json:"metrics"`
}

// WriteSummary persists the end-of-run summary record.
func WriteSummary(path string, s Summary) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create summary")
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return errors.Wrap(err, "encode summary")
	}
	return nil
}
