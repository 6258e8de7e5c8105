package nn

import (
	"fmt"

	"github.com/cwbudde/imagebench/internal/param"
)

// Tensor is a dense row-major float64 array.
type Tensor struct {
	Shape param.Shape
	Data  []float64
}

// NewTensor allocates a zero tensor of the given shape.
func NewTensor(shape param.Shape) *Tensor {
	return &Tensor{Shape: shape.Clone(), Data: make([]float64, shape.Size())}
}

// FromSlice wraps data as a tensor, failing if the sizes disagree.
func FromSlice(shape param.Shape, data []float64) (*Tensor, error) {
	if len(data) != shape.Size() {
		return nil, &param.ShapeError{Got: len(data), Want: shape}
	}
	return &Tensor{Shape: shape.Clone(), Data: data}, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: t.Shape.Clone(), Data: append([]float64(nil), t.Data...)}
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Validate checks that Data matches Shape.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("nil tensor")
	}
	if len(t.Data) != t.Shape.Size() {
		return &param.ShapeError{Got: len(t.Data), Want: t.Shape}
	}
	return nil
}
