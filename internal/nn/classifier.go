package nn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/cwbudde/imagebench/internal/param"
)

// Classifier maps a batch of images to one row of class logits per image.
// Implementations must accept a single-item batch and be deterministic for
// fixed weights. Forward must not modify its inputs.
type Classifier interface {
	Forward(batch []*Tensor) ([][]float64, error)
}

// ImageNet channel statistics for Normalize.
var (
	ImageNetMean = []float64{0.485, 0.456, 0.406}
	ImageNetStd  = []float64{0.229, 0.224, 0.225}
)

// Linear is a fully connected layer over the flattened input.
type Linear struct {
	in, out int
	weight  []float64 // out x in, row-major
	bias    []float64
}

// NewLinear creates a layer with weights and biases drawn uniformly from
// [-1/sqrt(in), 1/sqrt(in)].
func NewLinear(in, out int, rng *rand.Rand) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, &param.ConfigError{Field: "Linear", Reason: fmt.Sprintf("sizes must be positive, got %dx%d", in, out)}
	}
	bound := 1 / math.Sqrt(float64(in))
	l := &Linear{
		in:     in,
		out:    out,
		weight: make([]float64, in*out),
		bias:   make([]float64, out),
	}
	for i := range l.weight {
		l.weight[i] = (2*rng.Float64() - 1) * bound
	}
	for i := range l.bias {
		l.bias[i] = (2*rng.Float64() - 1) * bound
	}
	return l, nil
}

// NewLinearWithWeights builds a layer from explicit parameters.
func NewLinearWithWeights(weight [][]float64, bias []float64) (*Linear, error) {
	if len(weight) == 0 || len(weight[0]) == 0 {
		return nil, &param.ConfigError{Field: "Linear.Weight", Reason: "cannot be empty"}
	}
	if len(bias) != len(weight) {
		return nil, &param.ConfigError{Field: "Linear.Bias", Reason: fmt.Sprintf("has %d values, need %d", len(bias), len(weight))}
	}
	in := len(weight[0])
	l := &Linear{in: in, out: len(weight), bias: append([]float64(nil), bias...)}
	for r, row := range weight {
		if len(row) != in {
			return nil, &param.ConfigError{Field: "Linear.Weight", Reason: fmt.Sprintf("row %d has %d values, need %d", r, len(row), in)}
		}
		l.weight = append(l.weight, row...)
	}
	return l, nil
}

// In returns the flattened input size.
func (l *Linear) In() int { return l.in }

// Out returns the number of classes.
func (l *Linear) Out() int { return l.out }

func (l *Linear) Forward(batch []*Tensor) ([][]float64, error) {
	logits := make([][]float64, len(batch))
	for b, x := range batch {
		if err := x.Validate(); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", b, err)
		}
		if x.Len() != l.in {
			return nil, fmt.Errorf("batch item %d: linear layer expects %d inputs, got %d", b, l.in, x.Len())
		}
		row := make([]float64, l.out)
		for o := 0; o < l.out; o++ {
			w := l.weight[o*l.in : (o+1)*l.in]
			sum := l.bias[o]
			for i, v := range x.Data {
				sum += w[i] * v
			}
			row[o] = sum
		}
		logits[b] = row
	}
	return logits, nil
}

// Normalize standardizes each channel of a (C,H,W) input before handing it
// to the wrapped classifier.
type Normalize struct {
	Mean  []float64
	Std   []float64
	Model Classifier
}

// NewNormalize wraps model with per-channel standardization.
func NewNormalize(mean, std []float64, model Classifier) (*Normalize, error) {
	if model == nil {
		return nil, &param.ConfigError{Field: "Normalize.Model", Reason: "cannot be nil"}
	}
	if len(mean) == 0 || len(mean) != len(std) {
		return nil, &param.ConfigError{Field: "Normalize", Reason: "mean and std must have the same non-zero length"}
	}
	for i, s := range std {
		if s == 0 {
			return nil, &param.ConfigError{Field: "Normalize.Std", Reason: fmt.Sprintf("channel %d is zero", i)}
		}
	}
	return &Normalize{
		Mean:  append([]float64(nil), mean...),
		Std:   append([]float64(nil), std...),
		Model: model,
	}, nil
}

func (n *Normalize) Forward(batch []*Tensor) ([][]float64, error) {
	normed := make([]*Tensor, len(batch))
	for b, x := range batch {
		if err := x.Validate(); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", b, err)
		}
		if len(x.Shape) != 3 || x.Shape[0] != len(n.Mean) {
			return nil, fmt.Errorf("batch item %d: expected (%d,H,W) input, got %s", b, len(n.Mean), x.Shape)
		}
		out := NewTensor(x.Shape)
		plane := x.Shape[1] * x.Shape[2]
		for c := range n.Mean {
			for i := c * plane; i < (c+1)*plane; i++ {
				out.Data[i] = (x.Data[i] - n.Mean[c]) / n.Std[c]
			}
		}
		normed[b] = out
	}
	return n.Model.Forward(normed)
}
