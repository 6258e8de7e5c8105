// Package benchmark builds named suites of adversarial objectives.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"golang.org/x/exp/rand"

	"github.com/cwbudde/imagebench/internal/imaging"
	"github.com/cwbudde/imagebench/internal/nn"
	"github.com/cwbudde/imagebench/internal/objective"
	"github.com/cwbudde/imagebench/internal/param"
)

// Preset names.
const (
	Test     = "test"
	ImageNet = "imagenet"
)

// DefaultImageSize is the side of the square images fed to the classifiers.
const DefaultImageSize = 224

// testClasses is the output size of the test preset's classifier.
const testClasses = 10

// ErrUnknownBenchmark matches every *UnknownBenchmarkError via errors.Is.
var ErrUnknownBenchmark = &UnknownBenchmarkError{}

// UnknownBenchmarkError is returned by Make for names it does not know.
type UnknownBenchmarkError struct {
	Name string
}

func (e *UnknownBenchmarkError) Error() string {
	return fmt.Sprintf("unknown benchmark case %q", e.Name)
}

func (e *UnknownBenchmarkError) Is(target error) bool {
	_, ok := target.(*UnknownBenchmarkError)
	return ok
}

// Config holds the collaborators of the presets. Zero values pick defaults.
type Config struct {
	Seed      uint64  // test image and weights, dataset shuffling
	ImageSize int     // defaults to DefaultImageSize
	Epsilon   float64 // defaults to objective.DefaultEpsilon

	// Classifier is the imagenet model. It receives images already
	// standardized with the ImageNet channel statistics.
	Classifier nn.Classifier

	// Provider supplies imagenet samples. When nil Make opens a
	// FolderProvider over DataDir.
	Provider imaging.DataProvider
	DataDir  string
	Shuffle  bool
	Codec    imaging.Codec
}

// DefaultConfig returns the configuration used by the command line.
func DefaultConfig() Config {
	return Config{
		ImageSize: DefaultImageSize,
		Epsilon:   objective.DefaultEpsilon,
		Shuffle:   true,
	}
}

func (c Config) withDefaults() Config {
	if c.ImageSize == 0 {
		c.ImageSize = DefaultImageSize
	}
	if c.Epsilon == 0 {
		c.Epsilon = objective.DefaultEpsilon
	}
	if c.Codec == nil {
		c.Codec = imaging.FileCodec{}
	}
	return c
}

// Names lists the known presets in sorted order.
func Names() []string {
	names := []string{Test, ImageNet}
	sort.Strings(names)
	return names
}

// Sequence lazily produces the objectives of one preset. It is single-use:
// once Next has returned io.EOF it keeps doing so.
// A Sequence must not be used from multiple goroutines.
type Sequence struct {
	name    string
	next    func(ctx context.Context) (*objective.Adversarial, error)
	done    bool
	yielded int
}

// Make returns the sequence of the preset called name. Unknown names,
// invalid settings, missing collaborators and an unreadable dataset folder
// are reported here, before any objective is built.
func Make(name string, cfg Config) (*Sequence, error) {
	cfg = cfg.withDefaults()
	if cfg.ImageSize <= 0 {
		return nil, &param.ConfigError{Field: "ImageSize", Reason: fmt.Sprintf("must be positive, got %d", cfg.ImageSize)}
	}
	if !(cfg.Epsilon > 0) || math.IsInf(cfg.Epsilon, 0) {
		return nil, &param.ConfigError{Field: "Epsilon", Reason: fmt.Sprintf("must be positive and finite, got %g", cfg.Epsilon)}
	}

	s := &Sequence{name: name}
	switch name {
	case Test:
		s.next = testSource(cfg)
	case ImageNet:
		next, err := imageNetSource(cfg)
		if err != nil {
			return nil, err
		}
		s.next = next
	default:
		return nil, &UnknownBenchmarkError{Name: name}
	}
	return s, nil
}

// Name returns the preset name.
func (s *Sequence) Name() string { return s.name }

// Yielded returns how many objectives Next has produced so far.
func (s *Sequence) Yielded() int { return s.yielded }

// Next returns the next objective, or io.EOF when the preset is exhausted.
func (s *Sequence) Next(ctx context.Context) (*objective.Adversarial, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fn, err := s.next(ctx)
	if errors.Is(err, io.EOF) {
		s.done = true
		slog.Debug("Benchmark exhausted", "benchmark", s.name, "yielded", s.yielded)
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	s.yielded++
	return fn, nil
}

// Collect drains the sequence.
func (s *Sequence) Collect(ctx context.Context) ([]*objective.Adversarial, error) {
	var out []*objective.Adversarial
	for {
		fn, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, fn)
	}
}

// At consumes the sequence up to and including the objective with the given
// zero-based index and returns it. It returns io.EOF when the preset has
// fewer instances.
func (s *Sequence) At(ctx context.Context, index int) (*objective.Adversarial, error) {
	if index < 0 {
		return nil, &param.ConfigError{Field: "Instance", Reason: fmt.Sprintf("must be non-negative, got %d", index)}
	}
	for {
		fn, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if s.yielded-1 == index {
			return fn, nil
		}
	}
}

// testSource yields a single untargeted objective over a random linear
// classifier and a uniform noise image.
func testSource(cfg Config) func(context.Context) (*objective.Adversarial, error) {
	used := false
	return func(context.Context) (*objective.Adversarial, error) {
		if used {
			return nil, io.EOF
		}
		used = true

		rng := rand.New(rand.NewSource(cfg.Seed))
		shape := param.Shape{3, cfg.ImageSize, cfg.ImageSize}
		clf, err := nn.NewLinear(shape.Size(), testClasses, rng)
		if err != nil {
			return nil, err
		}
		img := nn.NewTensor(shape)
		for i := range img.Data {
			img.Data[i] = rng.Float64()
		}

		return objective.NewAdversarial(objective.AdversarialConfig{
			Classifier: clf,
			Image:      img,
			Label:      0,
			Epsilon:    cfg.Epsilon,
			Tags:       objective.Descriptors{"benchmark": Test},
		})
	}
}

// imageNetSource yields one untargeted objective per sample the classifier
// already labels correctly.
func imageNetSource(cfg Config) (func(context.Context) (*objective.Adversarial, error), error) {
	if cfg.Classifier == nil {
		return nil, &param.ConfigError{Field: "Classifier", Reason: "required for the imagenet benchmark"}
	}
	if cfg.Provider == nil && cfg.DataDir == "" {
		return nil, &param.ConfigError{Field: "DataDir", Reason: "required when no provider is given"}
	}
	clf, err := nn.NewNormalize(nn.ImageNetMean, nn.ImageNetStd, cfg.Classifier)
	if err != nil {
		return nil, err
	}

	provider := cfg.Provider
	if provider == nil {
		fp, err := imaging.NewFolderProvider(imaging.FolderConfig{
			Root:      cfg.DataDir,
			ImageSize: cfg.ImageSize,
			Shuffle:   cfg.Shuffle,
			Seed:      cfg.Seed,
			Codec:     cfg.Codec,
		})
		if err != nil {
			return nil, &param.ConfigError{Field: "DataDir", Reason: err.Error()}
		}
		provider = fp
	}

	index := -1
	return func(ctx context.Context) (*objective.Adversarial, error) {
		for {
			sample, err := provider.Next(ctx)
			if err != nil {
				return nil, err
			}
			index++

			logits, err := clf.Forward([]*nn.Tensor{sample.Image})
			if err != nil {
				return nil, &objective.EvaluationError{Function: "classifier", Err: err}
			}
			if len(logits) != 1 {
				return nil, &objective.EvaluationError{
					Function: "classifier",
					Err:      fmt.Errorf("expected 1 row of logits, got %d", len(logits)),
				}
			}
			if pred := nn.Argmax(logits[0]); pred != sample.Label {
				slog.Debug("Skipping misclassified sample",
					"index", index,
					"path", sample.Path,
					"label", sample.Label,
					"prediction", pred,
				)
				continue
			}

			tags := objective.Descriptors{"benchmark": ImageNet, "sample": strconv.Itoa(index)}
			if sample.Path != "" {
				tags["path"] = sample.Path
			}
			return objective.NewAdversarial(objective.AdversarialConfig{
				Classifier: clf,
				Image:      sample.Image,
				Label:      sample.Label,
				Epsilon:    cfg.Epsilon,
				Tags:       tags,
			})
		}
	}, nil
}
