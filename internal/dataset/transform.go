package dataset

import (
	"image"
	"math"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
)

// FeatureGrid is the side length of the sampling grid.
const FeatureGrid = 16

// FeatureSize is the length of the feature vector produced by a
// transform: one value per grid cell per RGB channel.
const FeatureSize = FeatureGrid * FeatureGrid * 3

// Per-channel normalization statistics (ImageNet).
var (
	channelMean = [3]float64{0.485, 0.456, 0.406}
	channelStd  = [3]float64{0.229, 0.224, 0.225}
)

// Transform converts a decoded image into a fixed-size feature vector.
type Transform interface {
	Apply(img image.Image) ([]float64, error)
}

// EvalTransform samples the full frame deterministically. Applying it to
// the same image always yields the same features.
type EvalTransform struct{}

func (EvalTransform) Apply(img image.Image) ([]float64, error) {
	return sampleGrid(img, img.Bounds(), false)
}

// TrainTransform applies a random crop window and random horizontal flip
// before grid sampling. It is safe for concurrent use by loader workers;
// draws from the shared RNG are serialized.
type TrainTransform struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewTrainTransform(rng *rand.Rand) *TrainTransform {
	return &TrainTransform{rng: rng}
}

func (t *TrainTransform) Apply(img image.Image) ([]float64, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("transform: empty image")
	}

	t.mu.Lock()
	scale := 0.7 + t.rng.Float64()*0.3
	offsetX := t.rng.Float64()
	offsetY := t.rng.Float64()
	flip := t.rng.Float64() < 0.5
	t.mu.Unlock()

	cropW := int(float64(width) * scale)
	cropH := int(float64(height) * scale)
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}
	x0 := bounds.Min.X + int(offsetX*float64(width-cropW))
	y0 := bounds.Min.Y + int(offsetY*float64(height-cropH))
	crop := image.Rect(x0, y0, x0+cropW, y0+cropH)

	return sampleGrid(img, crop, flip)
}

// sampleGrid reads a FeatureGrid x FeatureGrid grid of pixels from the
// window and returns normalized channel-major features.
func sampleGrid(img image.Image, window image.Rectangle, flip bool) ([]float64, error) {
	width := window.Dx()
	height := window.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("transform: empty sample window")
	}

	features := make([]float64, FeatureSize)
	stepX := float64(width) / FeatureGrid
	stepY := float64(height) / FeatureGrid
	for gy := 0; gy < FeatureGrid; gy++ {
		for gx := 0; gx < FeatureGrid; gx++ {
			sx := gx
			if flip {
				sx = FeatureGrid - 1 - gx
			}
			px := window.Min.X + int(math.Min(float64(width-1), float64(sx)*stepX))
			py := window.Min.Y + int(math.Min(float64(height-1), float64(gy)*stepY))
			r, g, b, _ := img.At(px, py).RGBA()
			cell := gy*FeatureGrid + gx
			for ch, v := range [3]uint32{r, g, b} {
				value := float64(v) / 65535.0
				features[ch*FeatureGrid*FeatureGrid+cell] = (value - channelMean[ch]) / channelStd[ch]
			}
		}
	}
	return features, nil
}
