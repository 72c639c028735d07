package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/TaffyWrinkle/CameraTraps/internal/checkpoints"
	"github.com/TaffyWrinkle/CameraTraps/internal/config"
	"github.com/TaffyWrinkle/CameraTraps/internal/dataset"
	"github.com/TaffyWrinkle/CameraTraps/internal/metrics"
	"github.com/TaffyWrinkle/CameraTraps/internal/model"
	"github.com/TaffyWrinkle/CameraTraps/internal/optim"
	"github.com/TaffyWrinkle/CameraTraps/internal/telemetry"
)

const (
	checkpointFile = "checkpoint_best_model.json"
	paramsFile     = "params.json"
	labelIndexFile = "label_index.json"
	metricsFile    = "metrics.jsonl"
	summaryFile    = "summary.json"
)

// Experiment owns one training run: seed, run directory, collaborators,
// the epoch loop, and the end-of-run summary.
type Experiment struct {
	cfg *config.Config
}

// New wraps a validated config.
func New(cfg *config.Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Run drives the whole experiment: Init, then one Train + Eval epoch pair
// plus a checkpoint check per configured epoch, then Finalize. With zero
// epochs it performs a single evaluation pass over the validation split.
func (e *Experiment) Run(ctx context.Context) error {
	cfg := e.cfg

	// Resolve the seed once; all randomness in the run flows from this
	// single RNG. Seed 0 means "pick one" and the picked value is
	// recorded in the params artifact.
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(10_000)
	}
	rng := rand.New(rand.NewSource(seed))

	catalog, err := dataset.Load(cfg.DatasetCSV, cfg.SplitsJSON, cfg.ImagesDir, cfg.MultiLabel)
	if err != nil {
		return err
	}
	numClasses := catalog.NumClasses()
	if numClasses < 2 {
		return errors.Errorf("trainer: dataset has %d labels, need at least 2", numClasses)
	}

	runDir, err := createRunDir(cfg.RunRoot)
	if err != nil {
		return err
	}
	log.Printf("run dir: %s (seed %d, %d classes)", runDir, seed, numClasses)

	lr := cfg.LearningRate
	if lr <= 0 {
		lr = 0.016 * float64(cfg.BatchSize) / 256
		if cfg.InitCheckpoint != "" {
			// Warm starts resume at the halfway-decayed rate.
			lr *= math.Pow(0.97, 175/2.4)
		}
	}

	if err := writeParams(filepath.Join(runDir, paramsFile), cfg, seed, lr); err != nil {
		return err
	}
	if err := catalog.WriteLabelIndex(filepath.Join(runDir, labelIndexFile)); err != nil {
		return err
	}

	mdl, err := model.New(cfg.ModelName, numClasses, dataset.FeatureSize, cfg.Finetune, rng)
	if err != nil {
		return err
	}
	if cfg.InitCheckpoint != "" {
		cp, err := checkpoints.NewSaver().Load(cfg.InitCheckpoint)
		if err != nil {
			return errors.Wrap(err, "load init checkpoint")
		}
		if err := checkpoints.LoadWeights(cp.Weights, mdl.Parameters()); err != nil {
			return err
		}
		log.Printf("initialized weights from %s (epoch %d)", cfg.InitCheckpoint, cp.TrainingState.Epoch)
	}

	optCfg := optim.DefaultRMSPropConfig(cfg.BatchSize)
	optCfg.LearningRate = lr
	opt := optim.NewRMSProp(mdl.Parameters(), optCfg)
	loss := model.NewCrossEntropy()

	valSamples, err := catalog.Split("val")
	if err != nil {
		return err
	}
	valLoader, err := dataset.NewLoader(valSamples, dataset.EvalTransform{}, cfg.BatchSize, cfg.NumWorkers, false, nil)
	if err != nil {
		return errors.Wrap(err, "val split")
	}

	fileRec, err := telemetry.NewFileRecorder(filepath.Join(runDir, metricsFile))
	if err != nil {
		return err
	}
	rec := telemetry.MultiRecorder{fileRec, telemetry.LogRecorder{}}
	defer rec.Close()

	runner := &EpochRunner{
		Model:     mdl,
		Loss:      loss,
		Optimizer: opt,
		TopK:      cfg.TopK,
		Finetune:  cfg.Finetune,
	}
	selector := NewCheckpointSelector(filepath.Join(runDir, checkpointFile))

	bestMetrics := make(map[string]float64)

	if cfg.Epochs == 0 {
		valMetrics, err := runner.Run(ctx, model.Eval, valLoader)
		if err != nil {
			return err
		}
		if err := recordAll(rec, valMetrics, 0, "val/"); err != nil {
			return err
		}
		mergePrefixed(bestMetrics, valMetrics, "val_")
		return writeSummary(runDir, cfg, seed, lr, bestMetrics)
	}

	trainSamples, err := catalog.Split("train")
	if err != nil {
		return err
	}
	trainLoader, err := dataset.NewLoader(trainSamples, dataset.NewTrainTransform(rng), cfg.BatchSize, cfg.NumWorkers, true, rng)
	if err != nil {
		return errors.Wrap(err, "train split")
	}
	log.Printf("train samples: %d, val samples: %d", trainLoader.Len(), valLoader.Len())

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		log.Printf("epoch %d/%d", epoch+1, cfg.Epochs)

		trainMetrics, err := runner.Run(ctx, model.Train, trainLoader)
		if err != nil {
			return errors.Wrapf(err, "train epoch %d", epoch)
		}
		if err := recordAll(rec, trainMetrics, epoch, "train/"); err != nil {
			return err
		}

		valMetrics, err := runner.Run(ctx, model.Eval, valLoader)
		if err != nil {
			return errors.Wrapf(err, "val epoch %d", epoch)
		}
		if err := recordAll(rec, valMetrics, epoch, "val/"); err != nil {
			return err
		}

		top1, ok := valMetrics.Get(metrics.AccTopKey(1))
		if !ok {
			return errors.New("trainer: val metrics missing acc_top1")
		}
		saved, err := selector.Consider(epoch, top1, mdl, opt)
		if err != nil {
			return errors.Wrapf(err, "checkpoint epoch %d", epoch)
		}
		if saved {
			log.Printf("new best model (val acc_top1 %.3f), saved %s", top1, selector.Path())
			bestMetrics = make(map[string]float64)
			mergePrefixed(bestMetrics, valMetrics, "val_")
			mergePrefixed(bestMetrics, trainMetrics, "train_")
		}
	}

	return writeSummary(runDir, cfg, seed, lr, bestMetrics)
}

// createRunDir makes a uniquely named directory under root using the
// start timestamp, suffixing on collision.
func createRunDir(root string) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", errors.Wrap(err, "create run root")
	}
	base := time.Now().Format("20060102_150405")
	dir := filepath.Join(root, base)
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", errors.Wrap(err, "create run dir")
		}
		dir = filepath.Join(root, fmt.Sprintf("%s_%d", base, i))
	}
}

type runParams struct {
	DatasetCSV     string  `json:"dataset_csv"`
	SplitsJSON     string  `json:"splits_json"`
	ImagesDir      string  `json:"images_dir"`
	ModelName      string  `json:"model_name"`
	InitCheckpoint string  `json:"init_checkpoint,omitempty"`
	Finetune       bool    `json:"finetune"`
	MultiLabel     bool    `json:"multilabel"`
	Epochs         int     `json:"epochs"`
	BatchSize      int     `json:"batch_size"`
	NumWorkers     int     `json:"num_workers"`
	Seed           int64   `json:"seed"`
	LearningRate   float64 `json:"learning_rate"`
	TopK           []int   `json:"top_k"`
}

func resolvedParams(cfg *config.Config, seed int64, lr float64) runParams {
	return runParams{
		DatasetCSV:     cfg.DatasetCSV,
		SplitsJSON:     cfg.SplitsJSON,
		ImagesDir:      cfg.ImagesDir,
		ModelName:      cfg.ModelName,
		InitCheckpoint: cfg.InitCheckpoint,
		Finetune:       cfg.Finetune,
		MultiLabel:     cfg.MultiLabel,
		Epochs:         cfg.Epochs,
		BatchSize:      cfg.BatchSize,
		NumWorkers:     cfg.NumWorkers,
		Seed:           seed,
		LearningRate:   lr,
		TopK:           cfg.TopK,
	}
}

func writeParams(path string, cfg *config.Config, seed int64, lr float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create params")
	}
	defer f.Close()
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(resolvedParams(cfg, seed, lr)); err != nil {
		return errors.Wrap(err, "encode params")
	}
	return nil
}

func writeSummary(runDir string, cfg *config.Config, seed int64, lr float64, best map[string]float64) error {
	p := resolvedParams(cfg, seed, lr)
	summary := telemetry.Summary{
		Hyperparams: map[string]interface{}{
			"model_name":    p.ModelName,
			"multilabel":    p.MultiLabel,
			"finetune":      p.Finetune,
			"batch_size":    p.BatchSize,
			"epochs":        p.Epochs,
			"seed":          p.Seed,
			"learning_rate": p.LearningRate,
		},
		Metrics: best,
	}
	return telemetry.WriteSummary(filepath.Join(runDir, summaryFile), summary)
}

func recordAll(rec telemetry.Recorder, em *metrics.EpochMetrics, epoch int, prefix string) error {
	for _, name := range em.Names() {
		value, _ := em.Get(name)
		if err := rec.Record(prefix+name, value, epoch); err != nil {
			return err
		}
	}
	return nil
}

func mergePrefixed(dst map[string]float64, em *metrics.EpochMetrics, prefix string) {
	for _, name := range em.Names() {
		value, _ := em.Get(name)
		dst[prefix+name] = value
	}
}
