package objective

import (
	"log/slog"
	"math"

	"golang.org/x/sys/cpu"
)

// L1 distance kernel (sum of absolute differences over float64 arrays).
//
// Two implementations:
//   - unrolled: four independent accumulators, keeps wide out-of-order cores busy
//   - scalar:   single accumulator, portable reference
//
// The unrolled kernel changes summation order, so results can differ from the
// scalar kernel in the last bits for non-integer inputs.

// L1Backend indicates which kernel is active
type L1Backend int

const (
	L1BackendScalar L1Backend = iota
	L1BackendUnrolled
)

func (b L1Backend) String() string {
	switch b {
	case L1BackendUnrolled:
		return "unrolled"
	case L1BackendScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// ActiveL1Backend reports which kernel was selected at startup
var ActiveL1Backend L1Backend

var l1Kernel func(a, b []float64) float64

func init() {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		ActiveL1Backend = L1BackendUnrolled
		l1Kernel = l1Unrolled
	} else {
		ActiveL1Backend = L1BackendScalar
		l1Kernel = l1Scalar
	}
	slog.Debug("L1 kernel initialized", "backend", ActiveL1Backend.String())
}

// L1Distance returns sum |a[i] - b[i]|. Both slices must have the same length.
func L1Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("L1Distance: length mismatch")
	}
	return l1Kernel(a, b)
}

func l1Scalar(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

func l1Unrolled(a, b []float64) float64 {
	var s0, s1, s2, s3 float64
	n := len(a) &^ 3
	b = b[:len(a)]
	for i := 0; i < n; i += 4 {
		s0 += math.Abs(a[i+0] - b[i+0])
		s1 += math.Abs(a[i+1] - b[i+1])
		s2 += math.Abs(a[i+2] - b[i+2])
		s3 += math.Abs(a[i+3] - b[i+3])
	}
	for i := n; i < len(a); i++ {
		s0 += math.Abs(a[i] - b[i])
	}
	return (s0 + s1) + (s2 + s3)
}
