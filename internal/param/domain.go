package param

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// BoundingPolicy decides what happens to coordinates that leave [Lower, Upper]
type BoundingPolicy int

const (
	// BoundClip clamps out-of-range coordinates to the nearest bound
	BoundClip BoundingPolicy = iota
	// BoundResample redraws out-of-range coordinates uniformly inside the bounds
	BoundResample
)

func (b BoundingPolicy) String() string {
	switch b {
	case BoundClip:
		return "clipping"
	case BoundResample:
		return "resample"
	default:
		return "unknown"
	}
}

// DomainConfig holds everything needed to build a Domain.
type DomainConfig struct {
	Shape Shape
	Init  []float64 // Initial point, len must equal Shape.Size()
	Sigma float64   // Mutation strength, > 0
	Lower float64
	Upper float64

	Bounding BoundingPolicy

	// FullRangeSampling makes Sample draw uniformly over the whole box
	// instead of around Init.
	FullRangeSampling bool

	// MutableSigma tells optimizers they may adapt sigma during the run.
	MutableSigma bool

	Crossover Crossover
}

// Domain describes the search space of an objective function: shape, box
// bounds, mutation strength, bounding policy and structured crossover.
// A Domain is immutable once built and safe for concurrent use.
type Domain struct {
	shape        Shape
	init         []float64
	sigma        float64
	lower, upper float64
	bounding     BoundingPolicy
	fullRange    bool
	mutableSigma bool
	crossover    Crossover
}

// NewDomain validates cfg and returns the corresponding Domain.
func NewDomain(cfg DomainConfig) (*Domain, error) {
	if len(cfg.Shape) == 0 {
		return nil, &ConfigError{Field: "Shape", Reason: "cannot be empty"}
	}
	for i, d := range cfg.Shape {
		if d <= 0 {
			return nil, &ConfigError{Field: "Shape", Reason: fmt.Sprintf("dimension %d must be positive, got %d", i, d)}
		}
	}
	if !isFinite(cfg.Lower) || !isFinite(cfg.Upper) {
		return nil, &ConfigError{Field: "Bounds", Reason: "must be finite"}
	}
	if cfg.Lower > cfg.Upper {
		return nil, &ConfigError{Field: "Bounds", Reason: fmt.Sprintf("lower %g exceeds upper %g", cfg.Lower, cfg.Upper)}
	}
	if !isFinite(cfg.Sigma) || cfg.Sigma <= 0 {
		return nil, &ConfigError{Field: "Sigma", Reason: fmt.Sprintf("must be positive and finite, got %g", cfg.Sigma)}
	}
	if len(cfg.Init) != cfg.Shape.Size() {
		return nil, &ConfigError{
			Field:  "Init",
			Reason: fmt.Sprintf("has %d values, shape %s needs %d", len(cfg.Init), cfg.Shape, cfg.Shape.Size()),
		}
	}
	for i, v := range cfg.Init {
		if !isFinite(v) || v < cfg.Lower || v > cfg.Upper {
			return nil, &ConfigError{Field: "Init", Reason: fmt.Sprintf("value %g at %d is outside [%g, %g]", v, i, cfg.Lower, cfg.Upper)}
		}
	}
	if cfg.Bounding != BoundClip && cfg.Bounding != BoundResample {
		return nil, &ConfigError{Field: "Bounding", Reason: "unknown policy"}
	}
	if err := cfg.Crossover.validate(cfg.Shape); err != nil {
		return nil, err
	}

	return &Domain{
		shape:        cfg.Shape.Clone(),
		init:         append([]float64(nil), cfg.Init...),
		sigma:        cfg.Sigma,
		lower:        cfg.Lower,
		upper:        cfg.Upper,
		bounding:     cfg.Bounding,
		fullRange:    cfg.FullRangeSampling,
		mutableSigma: cfg.MutableSigma,
		crossover:    cfg.Crossover.clone(),
	}, nil
}

// Shape returns a copy of the point shape.
func (d *Domain) Shape() Shape { return d.shape.Clone() }

// Dim returns the number of coordinates in a point.
func (d *Domain) Dim() int { return len(d.init) }

func (d *Domain) Sigma() float64 { return d.sigma }

func (d *Domain) Lower() float64 { return d.lower }

func (d *Domain) Upper() float64 { return d.upper }

func (d *Domain) Bounding() BoundingPolicy { return d.bounding }

func (d *Domain) FullRangeSampling() bool { return d.fullRange }

func (d *Domain) MutableSigma() bool { return d.mutableSigma }

func (d *Domain) Crossover() Crossover { return d.crossover.clone() }

// Init returns a copy of the initial point.
func (d *Domain) Init() []float64 { return append([]float64(nil), d.init...) }

// Check returns a *ShapeError if x cannot be reshaped to the domain shape.
func (d *Domain) Check(x []float64) error {
	if len(x) != len(d.init) {
		return &ShapeError{Got: len(x), Want: d.Shape()}
	}
	return nil
}

// Contains reports whether every coordinate of x lies inside the bounds.
func (d *Domain) Contains(x []float64) bool {
	if len(x) != len(d.init) {
		return false
	}
	for _, v := range x {
		if !(v >= d.lower && v <= d.upper) {
			return false
		}
	}
	return true
}

// Sample draws a point inside the bounds.
func (d *Domain) Sample(rng *rand.Rand) []float64 {
	if d.fullRange {
		x := make([]float64, len(d.init))
		for i := range x {
			x[i] = d.uniform(rng)
		}
		return x
	}
	return d.Mutate(rng, d.init)
}

// Mutate adds isotropic Gaussian noise of strength Sigma to x and applies
// the bounding policy. x is not modified.
func (d *Domain) Mutate(rng *rand.Rand, x []float64) []float64 {
	return d.MutateWithSigma(rng, x, d.sigma)
}

// MutateWithSigma is Mutate with an explicit step size, for optimizers that
// adapt sigma when MutableSigma is set.
func (d *Domain) MutateWithSigma(rng *rand.Rand, x []float64, sigma float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v + sigma*rng.NormFloat64()
	}
	return d.boundInPlace(out, rng)
}

// ApplyBounds returns a copy of x with the bounding policy applied.
// BoundResample needs rng; with a nil rng it falls back to clipping.
func (d *Domain) ApplyBounds(x []float64, rng *rand.Rand) []float64 {
	out := append([]float64(nil), x...)
	return d.boundInPlace(out, rng)
}

func (d *Domain) boundInPlace(x []float64, rng *rand.Rand) []float64 {
	for i, v := range x {
		if v >= d.lower && v <= d.upper {
			continue
		}
		if d.bounding == BoundResample && rng != nil {
			x[i] = d.uniform(rng)
			continue
		}
		x[i] = clamp(v, d.lower, d.upper)
	}
	return x
}

// Recombine crosses a and b using the domain's crossover policy.
func (d *Domain) Recombine(rng *rand.Rand, a, b []float64) ([]float64, error) {
	return Recombine(rng, d.shape, a, b, d.crossover)
}

// RecombineWithSize crosses a and b along the domain's crossover axes with
// size as the block size limit instead of the configured one.
func (d *Domain) RecombineWithSize(rng *rand.Rand, a, b []float64, size float64) ([]float64, error) {
	return Recombine(rng, d.shape, a, b, d.crossover.WithMaxSize(size))
}

func (d *Domain) uniform(rng *rand.Rand) float64 {
	return d.lower + rng.Float64()*(d.upper-d.lower)
}

func clamp(val, lo, hi float64) float64 {
	if math.IsNaN(val) {
		return lo
	}
	return math.Max(lo, math.Min(hi, val))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
