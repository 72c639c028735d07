package dataset

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/TaffyWrinkle/CameraTraps/internal/model"
)

// Loader streams one split as ordered minibatches. Image decoding and
// transformation run on a worker pool, but batches are delivered as a
// strictly ordered blocking sequence; the consumer has no visibility into
// loader concurrency. A shuffling loader reshuffles at the start of every
// epoch from the run's RNG.
type Loader struct {
	samples   []Sample
	transform Transform
	batchSize int
	workers   int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader builds a loader. rng is required when shuffle is set.
func NewLoader(samples []Sample, transform Transform, batchSize, workers int, shuffle bool, rng *rand.Rand) (*Loader, error) {
	if len(samples) == 0 {
		return nil, errors.New("loader: no samples")
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("loader: batch size must be > 0 (got %d)", batchSize)
	}
	if workers <= 0 {
		workers = 1
	}
	if shuffle && rng == nil {
		return nil, errors.New("loader: shuffling requires an RNG")
	}
	return &Loader{
		samples:   samples,
		transform: transform,
		batchSize: batchSize,
		workers:   workers,
		shuffle:   shuffle,
		rng:       rng,
	}, nil
}

// Len returns the number of samples in the split.
func (l *Loader) Len() int {
	return len(l.samples)
}

type decodeJob struct {
	pos    int
	sample Sample
}

type decodeResult struct {
	pos      int
	features []float64
	label    int
	err      error
}

// Epoch starts one full pass and returns the batch stream plus an error
// channel. Both channels close when the pass completes; the first decode
// or read error aborts the pass. The final batch may be short.
func (l *Loader) Epoch(parent context.Context) (<-chan model.Batch, <-chan error) {
	order := make([]int, len(l.samples))
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	ctx, cancel := context.WithCancel(parent)
	jobs := make(chan decodeJob, l.workers)
	results := make(chan decodeResult, l.workers*2)
	out := make(chan model.Batch)
	errCh := make(chan error, 1)

	go func() {
		defer close(jobs)
		for pos, idx := range order {
			select {
			case <-ctx.Done():
				return
			case jobs <- decodeJob{pos: pos, sample: l.samples[idx]}:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < l.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				features, err := l.decode(job.sample)
				res := decodeResult{pos: job.pos, features: features, label: job.sample.Label, err: err}
				select {
				case <-ctx.Done():
					return
				case results <- res:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer cancel()
		defer close(errCh)
		defer close(out)
		l.assemble(ctx, results, out, errCh)
	}()

	return out, errCh
}

func (l *Loader) decode(s Sample) ([]float64, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "read image %s", s.Path)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %s", s.Path)
	}
	features, err := l.transform.Apply(img)
	if err != nil {
		return nil, errors.Wrapf(err, "transform image %s", s.Path)
	}
	return features, nil
}

// assemble reorders worker results by position and emits batches.
func (l *Loader) assemble(ctx context.Context, results <-chan decodeResult, out chan<- model.Batch, errCh chan<- error) {
	pending := make(map[int]decodeResult)
	next := 0

	inputs := make([]float64, 0, l.batchSize*FeatureSize)
	targets := make([]int, 0, l.batchSize)
	flush := func() bool {
		n := len(targets)
		batch := model.Batch{
			Inputs:  mat.NewDense(n, FeatureSize, append([]float64(nil), inputs...)),
			Targets: append([]int(nil), targets...),
		}
		inputs = inputs[:0]
		targets = targets[:0]
		select {
		case <-ctx.Done():
			return false
		case out <- batch:
			return true
		}
	}

	for next < len(l.samples) {
		res, ok := pending[next]
		if !ok {
			select {
			case <-ctx.Done():
				return
			case r, open := <-results:
				if !open {
					errCh <- errors.New("loader: result stream closed early")
					return
				}
				pending[r.pos] = r
				continue
			}
		}
		delete(pending, next)
		next++

		if res.err != nil {
			errCh <- res.err
			return
		}
		inputs = append(inputs, res.features...)
		targets = append(targets, res.label)
		if len(targets) == l.batchSize {
			if !flush() {
				return
			}
		}
	}
	if len(targets) > 0 {
		flush()
	}
}
