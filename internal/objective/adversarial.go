package objective

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cwbudde/imagebench/internal/nn"
	"github.com/cwbudde/imagebench/internal/param"
)

// DefaultEpsilon is the perturbation radius used by the benchmark presets.
const DefaultEpsilon = 0.05

// AdversarialConfig holds the collaborators of an adversarial objective.
type AdversarialConfig struct {
	Classifier nn.Classifier
	Image      *nn.Tensor // (C,H,W), values in [0,1]
	Label      int
	Targeted   bool
	Epsilon    float64 // Per-coordinate perturbation bound, > 0
	Tags       Descriptors
}

// Adversarial scores an additive perturbation of a fixed image by the
// classifier's cross-entropy against a fixed label.
//
// Untargeted attacks return the negated loss, so minimizing the fitness
// pushes the prediction away from Label; targeted attacks return the loss
// itself and pull the prediction towards Label.
type Adversarial struct {
	classifier nn.Classifier
	image      *nn.Tensor
	label      int
	targeted   bool
	epsilon    float64
	tags       Descriptors
	domain     *param.Domain
}

// NewAdversarial validates cfg and builds the objective. The image is
// copied; the classifier is shared and must not be trained afterwards.
func NewAdversarial(cfg AdversarialConfig) (*Adversarial, error) {
	if cfg.Classifier == nil {
		return nil, &param.ConfigError{Field: "Classifier", Reason: "cannot be nil"}
	}
	if cfg.Image == nil {
		return nil, &param.ConfigError{Field: "Image", Reason: "cannot be nil"}
	}
	if err := cfg.Image.Validate(); err != nil {
		return nil, &param.ConfigError{Field: "Image", Reason: err.Error()}
	}
	if len(cfg.Image.Shape) != 3 {
		return nil, &param.ConfigError{Field: "Image", Reason: fmt.Sprintf("expected (C,H,W) shape, got %s", cfg.Image.Shape)}
	}
	if math.IsNaN(cfg.Epsilon) || math.IsInf(cfg.Epsilon, 0) || cfg.Epsilon <= 0 {
		return nil, &param.ConfigError{Field: "Epsilon", Reason: fmt.Sprintf("must be positive and finite, got %g", cfg.Epsilon)}
	}
	if cfg.Label < 0 {
		return nil, &param.ConfigError{Field: "Label", Reason: fmt.Sprintf("must be non-negative, got %d", cfg.Label)}
	}

	image := cfg.Image.Clone()
	domain, err := param.NewDomain(param.DomainConfig{
		Shape:             image.Shape,
		Init:              make([]float64, image.Len()),
		Sigma:             cfg.Epsilon / 10,
		Lower:             -cfg.Epsilon,
		Upper:             cfg.Epsilon,
		Bounding:          param.BoundClip,
		FullRangeSampling: true,
		MutableSigma:      true,
		Crossover:         param.Crossover{Axes: []int{1, 2}, MaxSize: param.DefaultCrossoverSize},
	})
	if err != nil {
		return nil, err
	}

	return &Adversarial{
		classifier: cfg.Classifier,
		image:      image,
		label:      cfg.Label,
		targeted:   cfg.Targeted,
		epsilon:    cfg.Epsilon,
		tags:       Descriptors{}.Merge(cfg.Tags),
		domain:     domain,
	}, nil
}

func (a *Adversarial) Name() string { return "adversarial" }

func (a *Adversarial) Domain() *param.Domain { return a.domain }

func (a *Adversarial) Label() int { return a.label }

func (a *Adversarial) Targeted() bool { return a.targeted }

func (a *Adversarial) Epsilon() float64 { return a.epsilon }

// Image returns a copy of the unperturbed image.
func (a *Adversarial) Image() *nn.Tensor { return a.image.Clone() }

// Perturb returns clamp(image + x, 0, 1).
func (a *Adversarial) Perturb(x []float64) (*nn.Tensor, error) {
	if err := a.domain.Check(x); err != nil {
		return nil, err
	}
	out := nn.NewTensor(a.image.Shape)
	for i, v := range a.image.Data {
		out.Data[i] = math.Max(0, math.Min(1, v+x[i]))
	}
	return out, nil
}

// Evaluate runs the classifier on the perturbed image and returns the
// signed cross-entropy loss.
func (a *Adversarial) Evaluate(x []float64) (float64, error) {
	perturbed, err := a.Perturb(x)
	if err != nil {
		return 0, err
	}
	logits, err := a.classifier.Forward([]*nn.Tensor{perturbed})
	if err != nil {
		return 0, &EvaluationError{Function: a.Name(), Err: err}
	}
	if len(logits) != 1 {
		return 0, &EvaluationError{Function: a.Name(), Err: fmt.Errorf("classifier returned %d outputs for 1 input", len(logits))}
	}
	loss, err := nn.CrossEntropy(logits[0], a.label)
	if err != nil {
		return 0, &EvaluationError{Function: a.Name(), Err: err}
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, &EvaluationError{Function: a.Name(), Err: fmt.Errorf("non-finite loss %v", loss)}
	}
	if a.targeted {
		return loss, nil
	}
	return -loss, nil
}

// Descriptors includes the construction tags (e.g. the benchmark name).
func (a *Adversarial) Descriptors() Descriptors {
	return a.tags.Merge(Descriptors{
		"function": a.Name(),
		"label":    strconv.Itoa(a.label),
		"targeted": strconv.FormatBool(a.targeted),
		"epsilon":  strconv.FormatFloat(a.epsilon, 'g', -1, 64),
	})
}
