// Package objective implements black-box objective functions for
// derivative-free optimizers. Every function exposes its search domain, a
// scalar evaluation to be minimized and descriptors for reporting.
package objective

import (
	"sort"
	"strings"

	"github.com/cwbudde/imagebench/internal/param"
)

// Function is an objective to minimize over its Domain.
type Function interface {
	// Name identifies the kind of function (e.g. "recovery")
	Name() string

	// Domain describes valid search points
	Domain() *param.Domain

	// Evaluate returns the fitness of x. It never modifies x and returns
	// either a finite value or an error, never both.
	Evaluate(x []float64) (float64, error)

	// Descriptors returns metadata describing this instance
	Descriptors() Descriptors
}

// Descriptors is instance metadata used for reporting (benchmark tag,
// label, epsilon...).
type Descriptors map[string]string

// Merge returns a new map holding d overridden by other.
func (d Descriptors) Merge(other Descriptors) Descriptors {
	out := make(Descriptors, len(d)+len(other))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys returns the descriptor keys in sorted order.
func (d Descriptors) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d Descriptors) String() string {
	var sb strings.Builder
	for i, k := range d.Keys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(d[k])
	}
	return sb.String()
}
