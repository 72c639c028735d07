// Package config holds the immutable hyperparameter set for a training
// run. Values come from an optional YAML file, then CLI overrides, and
// are validated before any epoch runs.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/TaffyWrinkle/CameraTraps/internal/model"
)

// Config captures the hyperparameters fixed for the run's lifetime.
type Config struct {
	DatasetCSV string `yaml:"dataset_csv"`
	SplitsJSON string `yaml:"splits_json"`
	ImagesDir  string `yaml:"images_dir"`

	ModelName      string `yaml:"model_name"`
	InitCheckpoint string `yaml:"init_checkpoint"`
	Finetune       bool   `yaml:"finetune"`
	MultiLabel     bool   `yaml:"multilabel"`

	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	NumWorkers   int     `yaml:"num_workers"`
	Seed         int64   `yaml:"seed"`
	LearningRate float64 `yaml:"learning_rate"`
	TopK         []int   `yaml:"top_k"`

	RunRoot string `yaml:"run_root"`
}

// Overrides captures CLI supplied values; zero values leave the config
// untouched.
type Overrides struct {
	DatasetCSV     string
	SplitsJSON     string
	ImagesDir      string
	ModelName      string
	InitCheckpoint string
	Finetune       bool
	MultiLabel     bool
	Epochs         int
	BatchSize      int
	NumWorkers     int
	Seed           int64
	LearningRate   float64
	RunRoot        string
}

// Default returns a config with the training defaults filled in.
func Default() *Config {
	return &Config{
		ModelName:  "mlp",
		Epochs:     0,
		BatchSize:  256,
		NumWorkers: 8,
		TopK:       []int{1, 3},
		RunRoot:    "run",
	}
}

// Load reads a Config from YAML, starting from the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	// An explicit empty list or string in the file falls back to the
	// default rather than producing an unrunnable config.
	if len(cfg.TopK) == 0 {
		cfg.TopK = []int{1, 3}
	}
	if cfg.RunRoot == "" {
		cfg.RunRoot = "run"
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override. Boolean flags
// only switch on; a YAML-enabled flag cannot be switched off from the CLI.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DatasetCSV != "" {
		c.DatasetCSV = o.DatasetCSV
	}
	if o.SplitsJSON != "" {
		c.SplitsJSON = o.SplitsJSON
	}
	if o.ImagesDir != "" {
		c.ImagesDir = o.ImagesDir
	}
	if o.ModelName != "" {
		c.ModelName = o.ModelName
	}
	if o.InitCheckpoint != "" {
		c.InitCheckpoint = o.InitCheckpoint
	}
	if o.Finetune {
		c.Finetune = true
	}
	if o.MultiLabel {
		c.MultiLabel = true
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.RunRoot != "" {
		c.RunRoot = o.RunRoot
	}
}

// Validate verifies the config is runnable without modifying it.
// Violations are configuration errors and surface before any epoch runs.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DatasetCSV == "" {
		return errors.New("dataset_csv is required")
	}
	if c.SplitsJSON == "" {
		return errors.New("splits_json is required")
	}
	if c.ImagesDir == "" {
		return errors.New("images_dir is required")
	}
	valid := false
	for _, name := range model.ValidModels {
		if c.ModelName == name {
			valid = true
			break
		}
	}
	if !valid {
		return errors.Errorf("unknown model_name %q (valid: %v)", c.ModelName, model.ValidModels)
	}
	if c.Epochs < 0 {
		return errors.Errorf("epochs must be >= 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NumWorkers <= 0 {
		return errors.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	if len(c.TopK) == 0 {
		return errors.New("top_k must not be empty")
	}
	seen := make(map[int]bool, len(c.TopK))
	hasTop1 := false
	for _, k := range c.TopK {
		if k < 1 {
			return errors.Errorf("top_k values must be >= 1 (got %d)", k)
		}
		if seen[k] {
			return errors.Errorf("top_k values must be distinct (got %d twice)", k)
		}
		seen[k] = true
		if k == 1 {
			hasTop1 = true
		}
	}
	if !hasTop1 {
		return errors.New("top_k must include 1 (checkpoint selection uses top-1 accuracy)")
	}
	if c.MultiLabel && c.Epochs > 0 {
		return errors.New("multilabel training is not supported")
	}
	if c.RunRoot == "" {
		return errors.New("run_root is required")
	}
	return nil
}
