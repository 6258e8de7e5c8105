package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/exp/rand"

	"github.com/cwbudde/imagebench/internal/objective"
	"github.com/cwbudde/imagebench/internal/param"
)

// Sigma adaptation for the one-fifth success rule.
const (
	successTarget = 0.2
	sigmaFactor   = 1.22
	minSigmaRatio = 1e-3
)

// blockTau is the log-normal step of the self-adapted crossover block size.
const blockTau = 0.2

// EvolutionConfig configures the steady-state genetic algorithm.
type EvolutionConfig struct {
	Budget         int // maximum number of evaluations
	PopSize        int
	Seed           uint64
	TournamentSize int
	CrossoverRate  float64 // probability of recombining two parents before mutation
	Convergence    ConvergenceConfig
}

// DefaultEvolutionConfig returns the defaults used by the run command.
func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		Budget:         1000,
		PopSize:        20,
		Seed:           1,
		TournamentSize: 3,
		CrossoverRate:  0.5,
		Convergence:    DefaultConvergenceConfig(),
	}
}

// Evolution is a steady-state genetic algorithm that works entirely through
// the domain: Sample for the initial population, Recombine for block
// crossover and Mutate for Gaussian steps. Each child replaces the worst
// member when it is better. When the domain allows it, sigma follows the
// one-fifth success rule once per generation of PopSize evaluations.
//
// Every member carries its own crossover block size, starting at the
// domain's limit. A child inherits its first parent's size after a
// log-normal step clamped to [1, param.MaxCrossoverSize].
type Evolution struct {
	cfg EvolutionConfig
}

// NewEvolution validates cfg and returns the optimizer.
func NewEvolution(cfg EvolutionConfig) (*Evolution, error) {
	if cfg.Budget <= 0 {
		return nil, &param.ConfigError{Field: "Budget", Reason: fmt.Sprintf("must be positive, got %d", cfg.Budget)}
	}
	if cfg.PopSize <= 0 {
		return nil, &param.ConfigError{Field: "PopSize", Reason: fmt.Sprintf("must be positive, got %d", cfg.PopSize)}
	}
	if cfg.TournamentSize <= 0 {
		return nil, &param.ConfigError{Field: "TournamentSize", Reason: fmt.Sprintf("must be positive, got %d", cfg.TournamentSize)}
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 || math.IsNaN(cfg.CrossoverRate) {
		return nil, &param.ConfigError{Field: "CrossoverRate", Reason: fmt.Sprintf("must be in [0, 1], got %g", cfg.CrossoverRate)}
	}
	return &Evolution{cfg: cfg}, nil
}

func (e *Evolution) Name() string { return "evolution" }

type member struct {
	x     []float64
	cost  float64
	block float64
}

func (e *Evolution) Run(ctx context.Context, fn objective.Function, opts RunOptions) (*Result, error) {
	d := fn.Domain()
	start, err := startPoint(fn, opts)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	t := newTracker(opts)
	sigma := d.Sigma()
	t.sigma = sigma
	block := float64(d.Crossover().Limit())
	conv := NewConvergenceTracker(e.cfg.Convergence)

	slog.Info("Starting evolution",
		"function", fn.Name(),
		"dim", d.Dim(),
		"budget", e.cfg.Budget,
		"pop_size", e.cfg.PopSize,
		"sigma", sigma,
	)

	pop := make([]member, 0, e.cfg.PopSize)
	for i := 0; i < e.cfg.PopSize && t.result.Evaluations < e.cfg.Budget; i++ {
		if err := ctx.Err(); err != nil {
			return t.finish(err)
		}
		x := start
		if i > 0 {
			x = d.Sample(rng)
		}
		if cost, ok := t.evaluate(fn, x); ok {
			pop = append(pop, member{x: x, cost: cost, block: block})
		}
	}

	successes, trials, generation := 0, 0, 0
	for t.result.Evaluations < e.cfg.Budget {
		if err := ctx.Err(); err != nil {
			return t.finish(err)
		}

		child, parentCost, childBlock := e.breed(rng, d, pop, sigma, block)
		cost, ok := t.evaluate(fn, child)
		trials++
		if ok {
			if cost < parentCost {
				successes++
			}
			m := member{x: child, cost: cost, block: childBlock}
			if len(pop) < e.cfg.PopSize {
				pop = append(pop, m)
			} else if w := worst(pop); cost < pop[w].cost {
				pop[w] = m
			}
		}

		if trials < e.cfg.PopSize {
			continue
		}
		generation++
		if d.MutableSigma() {
			sigma = adaptSigma(sigma, float64(successes)/float64(trials), d)
			t.sigma = sigma
		}
		slog.Debug("Generation complete",
			"generation", generation,
			"evaluations", t.result.Evaluations,
			"best_cost", t.result.BestCost,
			"success_rate", float64(successes)/float64(trials),
			"sigma", sigma,
			"mean_block_size", meanBlock(pop),
			"stale_count", conv.StaleCount(),
		)
		successes, trials = 0, 0
		if t.result.BestPoint != nil && conv.Update(t.result.BestCost) {
			t.result.Converged = true
			break
		}
	}

	res, err := t.finish(nil)
	if err == nil {
		slog.Info("Evolution finished",
			"function", fn.Name(),
			"evaluations", res.Evaluations,
			"failures", res.Failures,
			"best_cost", res.BestCost,
			"converged", res.Converged,
		)
	}
	return res, err
}

// breed produces the next candidate, the cost it has to beat to count as a
// success and its crossover block size. An empty population falls back to
// sampling the domain.
func (e *Evolution) breed(rng *rand.Rand, d *param.Domain, pop []member, sigma, block float64) ([]float64, float64, float64) {
	if len(pop) == 0 {
		return d.Sample(rng), math.Inf(1), block
	}

	a := e.tournament(rng, pop)
	parent, parentCost := a.x, a.cost
	childBlock := mutateBlock(rng, a.block)
	if len(pop) > 1 && rng.Float64() < e.cfg.CrossoverRate {
		b := e.tournament(rng, pop)
		if x, err := d.RecombineWithSize(rng, a.x, b.x, childBlock); err == nil {
			parent = x
			parentCost = math.Min(a.cost, b.cost)
		}
	}
	return d.MutateWithSigma(rng, parent, sigma), parentCost, childBlock
}

// mutateBlock takes a log-normal step from size and keeps the result inside
// [1, param.MaxCrossoverSize].
func mutateBlock(rng *rand.Rand, size float64) float64 {
	size *= math.Exp(blockTau * rng.NormFloat64())
	return math.Max(1, math.Min(param.MaxCrossoverSize, size))
}

func meanBlock(pop []member) float64 {
	if len(pop) == 0 {
		return 0
	}
	var sum float64
	for _, m := range pop {
		sum += m.block
	}
	return sum / float64(len(pop))
}

func (e *Evolution) tournament(rng *rand.Rand, pop []member) member {
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < e.cfg.TournamentSize; i++ {
		if c := pop[rng.Intn(len(pop))]; c.cost < best.cost {
			best = c
		}
	}
	return best
}

func worst(pop []member) int {
	w := 0
	for i := range pop {
		if pop[i].cost > pop[w].cost {
			w = i
		}
	}
	return w
}

// adaptSigma grows sigma when more than a fifth of the children improved on
// their parents and shrinks it otherwise. The result stays between a
// fraction of the domain sigma and the width of the box.
func adaptSigma(sigma, successRate float64, d *param.Domain) float64 {
	switch {
	case successRate > successTarget:
		sigma *= sigmaFactor
	case successRate < successTarget:
		sigma /= sigmaFactor
	}
	lo := d.Sigma() * minSigmaRatio
	hi := math.Max(d.Upper()-d.Lower(), lo)
	return math.Max(lo, math.Min(hi, sigma))
}
