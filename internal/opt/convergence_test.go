package opt

import "testing"

func TestConvergenceTracker(t *testing.T) {
	tests := []struct {
		name       string
		config     ConvergenceConfig
		costs      []float64
		convergeAt int // index of the update that reports convergence, -1 for never
	}{
		{
			name:       "disabled",
			config:     DisabledConvergenceConfig(),
			costs:      []float64{1, 1, 1, 1, 1},
			convergeAt: -1,
		},
		{
			name:       "steady improvement",
			config:     ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01},
			costs:      []float64{100, 90, 80, 70, 60},
			convergeAt: -1,
		},
		{
			name:       "stall",
			config:     ConvergenceConfig{Enabled: true, Patience: 3, Threshold: 0.01},
			costs:      []float64{100, 90, 89.99, 89.98, 89.97, 89.96},
			convergeAt: 4,
		},
		{
			name:       "negative costs improving",
			config:     ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01},
			costs:      []float64{-1, -2, -3, -4},
			convergeAt: -1,
		},
		{
			name:       "negative costs stalled",
			config:     ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01},
			costs:      []float64{-2, -2, -2},
			convergeAt: 2,
		},
		{
			name:       "zero cost",
			config:     ConvergenceConfig{Enabled: true, Patience: 1, Threshold: 0.01},
			costs:      []float64{0, 0},
			convergeAt: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConvergenceTracker(tt.config)
			got := -1
			for i, cost := range tt.costs {
				if c.Update(cost) {
					got = i
					break
				}
			}
			if got != tt.convergeAt {
				t.Errorf("Converged at %d, want %d", got, tt.convergeAt)
			}
		})
	}
}

func TestConvergenceTrackerStaleCount(t *testing.T) {
	c := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 10, Threshold: 0.1})
	for _, cost := range []float64{5, 3, 2.9, 4} {
		c.Update(cost)
	}
	if c.StaleCount() != 2 {
		t.Errorf("StaleCount = %d, want 2", c.StaleCount())
	}

	c.Update(1)
	if c.StaleCount() != 0 {
		t.Errorf("StaleCount after improvement = %d, want 0", c.StaleCount())
	}
}
