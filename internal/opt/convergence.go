package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines parameters for detecting optimization convergence
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool

	// Patience is the number of generations with no significant improvement
	// before stopping
	Patience int

	// Threshold is the minimum relative improvement required to count as progress.
	// Relative improvement = (last - cost) / |last|
	Threshold float64
}

// DefaultConvergenceConfig returns the defaults used by the run command
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  20,
		Threshold: 1e-4,
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{Enabled: false}
}

// ConvergenceTracker tracks the best cost per generation and detects when
// the optimization has stalled. Costs may be negative.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	updates         int
	bestCost        float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new cost value and returns true if convergence is detected
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.updates++
	if cost < c.bestCost {
		c.bestCost = cost
	}

	if c.updates == 1 {
		c.lastSignificant = cost
		return false
	}

	relativeImprovement := (c.lastSignificant - cost) / math.Max(math.Abs(c.lastSignificant), 1e-12)

	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = cost
		c.staleCount = 0
		slog.Debug("Cost improvement detected",
			"cost", cost,
			"relative_improvement", relativeImprovement,
		)
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_cost", c.bestCost,
		)
		return true
	}
	return false
}

// StaleCount returns the current number of generations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
