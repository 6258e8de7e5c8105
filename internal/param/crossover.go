package param

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// MaxCrossoverSize caps the block extent along any crossover axis.
const MaxCrossoverSize = 200

// DefaultCrossoverSize is the integer midpoint of [1, MaxCrossoverSize].
const DefaultCrossoverSize = 100

// Crossover copies a contiguous block of one parent into the other.
// Axes lists the axes the block is bounded along; the block spans every
// other axis completely. An empty Axes bounds the block along all axes.
//
// MaxSize is rounded to an integer and clamped to [1, MaxCrossoverSize];
// zero selects DefaultCrossoverSize.
type Crossover struct {
	Axes    []int
	MaxSize float64
}

// Limit returns the effective integer block size limit.
func (c Crossover) Limit() int {
	if c.MaxSize == 0 {
		return DefaultCrossoverSize
	}
	n := int(math.Round(c.MaxSize))
	if n < 1 {
		return 1
	}
	if n > MaxCrossoverSize {
		return MaxCrossoverSize
	}
	return n
}

// WithMaxSize returns a copy of c with a different block size limit.
func (c Crossover) WithMaxSize(size float64) Crossover {
	out := c.clone()
	out.MaxSize = size
	return out
}

func (c Crossover) clone() Crossover {
	return Crossover{Axes: append([]int(nil), c.Axes...), MaxSize: c.MaxSize}
}

func (c Crossover) validate(shape Shape) error {
	if math.IsNaN(c.MaxSize) || math.IsInf(c.MaxSize, 0) {
		return &ConfigError{Field: "Crossover.MaxSize", Reason: "must be finite"}
	}
	seen := make(map[int]bool, len(c.Axes))
	for _, ax := range c.Axes {
		if ax < 0 || ax >= len(shape) {
			return &ConfigError{Field: "Crossover.Axes", Reason: fmt.Sprintf("axis %d out of range for shape %s", ax, shape)}
		}
		if seen[ax] {
			return &ConfigError{Field: "Crossover.Axes", Reason: fmt.Sprintf("axis %d repeated", ax)}
		}
		seen[ax] = true
	}
	return nil
}

func (c Crossover) axes(rank int) []int {
	if len(c.Axes) > 0 {
		return c.Axes
	}
	all := make([]int, rank)
	for i := range all {
		all[i] = i
	}
	return all
}

// Block is a hyper-rectangle inside a shape: Start[i] <= idx[i] < Start[i]+Size[i].
type Block struct {
	Start []int
	Size  []int
}

// Len returns the number of elements covered by the block.
func (b Block) Len() int {
	n := 1
	for _, s := range b.Size {
		n *= s
	}
	return n
}

// SampleBlock draws a crossover block for shape. Along each crossover axis
// the size is uniform over [1, min(limit, dim)] and the start is uniform over
// every position that keeps the block inside the array.
func SampleBlock(rng *rand.Rand, shape Shape, c Crossover) Block {
	b := Block{Start: make([]int, len(shape)), Size: shape.Clone()}
	limit := c.Limit()
	for _, ax := range c.axes(len(shape)) {
		dim := shape[ax]
		hi := min(limit, dim)
		size := 1 + rng.Intn(hi)
		b.Size[ax] = size
		b.Start[ax] = rng.Intn(dim - size + 1)
	}
	return b
}

// CopyBlock copies the elements of src covered by b into dst. Both slices
// are laid out row-major in shape.
func CopyBlock(dst, src []float64, shape Shape, b Block) {
	rank := len(shape)
	if rank == 0 {
		return
	}
	strides := shape.Strides()
	last := rank - 1
	idx := make([]int, rank)
	copy(idx, b.Start)

	for {
		off := 0
		for i, v := range idx {
			off += v * strides[i]
		}
		// Innermost axis is contiguous.
		n := b.Size[last]
		copy(dst[off:off+n], src[off:off+n])

		// Advance the odometer over the outer axes.
		ax := last - 1
		for ; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < b.Start[ax]+b.Size[ax] {
				break
			}
			idx[ax] = b.Start[ax]
		}
		if ax < 0 {
			return
		}
	}
}

// Recombine returns a copy of a where a randomly drawn block has been
// replaced by the corresponding block of b. Neither parent is modified.
func Recombine(rng *rand.Rand, shape Shape, a, b []float64, c Crossover) ([]float64, error) {
	if len(a) != shape.Size() {
		return nil, &ShapeError{Got: len(a), Want: shape}
	}
	if len(b) != shape.Size() {
		return nil, &ShapeError{Got: len(b), Want: shape}
	}
	if err := c.validate(shape); err != nil {
		return nil, err
	}

	child := append([]float64(nil), a...)
	CopyBlock(child, b, shape, SampleBlock(rng, shape, c))
	return child, nil
}
