package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TaffyWrinkle/CameraTraps/internal/config"
	"github.com/TaffyWrinkle/CameraTraps/internal/trainer"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a species classifier",
	Long: `Train a classifier on a labeled image-crop catalog.
With --epochs 0 (the default) the run performs a single evaluation pass
over the validation split instead of training.`,
	Example: `  # Train for 50 epochs
  cameratraps train --dataset-csv crops.csv --splits-json splits.json \
    --images-dir crops/ --model-name mlp --epochs 50

  # Fine-tune only the final layer, warm-started from a checkpoint
  cameratraps train --config run.yaml --finetune \
    --init-checkpoint run/20260831_120000/checkpoint_best_model.json`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("dataset-csv", "", "Path to catalog CSV (path,dataset,location,label)")
	trainCmd.Flags().String("splits-json", "", "Path to splits JSON")
	trainCmd.Flags().String("images-dir", "", "Directory holding the image crops")
	trainCmd.Flags().StringP("model-name", "m", "", "Model identifier (linear, mlp)")
	trainCmd.Flags().String("init-checkpoint", "", "Checkpoint file to warm-start weights from")
	trainCmd.Flags().Bool("finetune", false, "Only train the final classification layer")
	trainCmd.Flags().Bool("multilabel", false, "Allow multi-label catalog entries")
	trainCmd.Flags().Int("epochs", 0, "Number of training epochs (0 = eval only)")
	trainCmd.Flags().Int("batch-size", 0, "Batch size for training and eval")
	trainCmd.Flags().Int("num-workers", 0, "Number of data loader workers")
	trainCmd.Flags().Int64("seed", 0, "PRNG seed (0 = pick one)")
	trainCmd.Flags().Float64("learning-rate", 0, "Override the batch-scaled learning rate")
	trainCmd.Flags().String("run-root", "", "Directory to create run directories under")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if path := viper.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	datasetCSV, _ := cmd.Flags().GetString("dataset-csv")
	splitsJSON, _ := cmd.Flags().GetString("splits-json")
	imagesDir, _ := cmd.Flags().GetString("images-dir")
	modelName, _ := cmd.Flags().GetString("model-name")
	initCheckpoint, _ := cmd.Flags().GetString("init-checkpoint")
	finetune, _ := cmd.Flags().GetBool("finetune")
	multiLabel, _ := cmd.Flags().GetBool("multilabel")
	epochs, _ := cmd.Flags().GetInt("epochs")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	numWorkers, _ := cmd.Flags().GetInt("num-workers")
	seed, _ := cmd.Flags().GetInt64("seed")
	learningRate, _ := cmd.Flags().GetFloat64("learning-rate")
	runRoot, _ := cmd.Flags().GetString("run-root")

	cfg.ApplyOverrides(config.Overrides{
		DatasetCSV:     datasetCSV,
		SplitsJSON:     splitsJSON,
		ImagesDir:      imagesDir,
		ModelName:      modelName,
		InitCheckpoint: initCheckpoint,
		Finetune:       finetune,
		MultiLabel:     multiLabel,
		Epochs:         epochs,
		BatchSize:      batchSize,
		NumWorkers:     numWorkers,
		Seed:           seed,
		LearningRate:   learningRate,
		RunRoot:        runRoot,
	})

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return trainer.New(cfg).Run(ctx)
}
