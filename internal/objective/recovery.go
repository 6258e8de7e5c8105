package objective

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/cwbudde/imagebench/internal/imaging"
	"github.com/cwbudde/imagebench/internal/param"
)

// Recovery domain constants
const (
	RecoverySide  = 256
	RecoveryInit  = 128.0
	RecoverySigma = 35.0
	RecoveryLower = 0.0
	RecoveryUpper = 255.99
)

// RecoveryShape is the (H,W,3) shape of a recovery candidate.
var RecoveryShape = param.Shape{RecoverySide, RecoverySide, 3}

// Recovery scores a candidate image by its L1 pixel distance to a fixed
// target image. It holds no mutable state after construction.
type Recovery struct {
	target []float64
	domain *param.Domain
}

// NewRecovery loads the target image at path, resizes it to 256x256 and
// keeps its RGB channels. A nil codec uses imaging.FileCodec.
func NewRecovery(path string, codec imaging.Codec) (*Recovery, error) {
	if codec == nil {
		codec = imaging.FileCodec{}
	}
	if path == "" {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("no target image given")}
	}
	img, err := codec.Decode(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	r, err := NewRecoveryFromImage(img, codec)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded recovery target", "path", path, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return r, nil
}

// NewRecoveryFromImage builds a recovery objective around an already
// decoded target image.
func NewRecoveryFromImage(img image.Image, codec imaging.Codec) (*Recovery, error) {
	if codec == nil {
		codec = imaging.FileCodec{}
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &param.ConfigError{Field: "Target", Reason: "image is empty"}
	}
	resized := codec.Resize(img, RecoverySide, RecoverySide)
	target := imaging.RGBArray(resized)

	init := make([]float64, RecoveryShape.Size())
	for i := range init {
		init[i] = RecoveryInit
	}
	domain, err := param.NewDomain(param.DomainConfig{
		Shape:             RecoveryShape,
		Init:              init,
		Sigma:             RecoverySigma,
		Lower:             RecoveryLower,
		Upper:             RecoveryUpper,
		Bounding:          param.BoundClip,
		FullRangeSampling: true,
		MutableSigma:      true,
		Crossover:         param.Crossover{Axes: []int{0, 1}, MaxSize: param.DefaultCrossoverSize},
	})
	if err != nil {
		return nil, err
	}

	return &Recovery{target: target, domain: domain}, nil
}

func (r *Recovery) Name() string { return "recovery" }

func (r *Recovery) Domain() *param.Domain { return r.domain }

// Evaluate returns sum |x - target| over all 256*256*3 values.
func (r *Recovery) Evaluate(x []float64) (float64, error) {
	if err := r.domain.Check(x); err != nil {
		return 0, err
	}
	d := L1Distance(x, r.target)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, &EvaluationError{Function: r.Name(), Err: fmt.Errorf("non-finite distance %v", d)}
	}
	return d, nil
}

func (r *Recovery) Descriptors() Descriptors {
	return Descriptors{
		"function":     r.Name(),
		"problem_name": "recovering",
		"index":        "0",
	}
}

// Target returns a copy of the (H,W,3) target array.
func (r *Recovery) Target() []float64 {
	return append([]float64(nil), r.target...)
}

// Render draws candidate x as an image.
func (r *Recovery) Render(x []float64) (*image.NRGBA, error) {
	if err := r.domain.Check(x); err != nil {
		return nil, err
	}
	return imaging.FromRGBArray(x, RecoverySide, RecoverySide)
}
