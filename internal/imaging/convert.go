package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/cwbudde/imagebench/internal/nn"
	"github.com/cwbudde/imagebench/internal/param"
)

// RGBArray flattens img to an (H,W,3) array of channel values in [0,255].
// The alpha channel is dropped.
func RGBArray(img image.Image) []float64 {
	n := ToNRGBA(img)
	w, h := n.Bounds().Dx(), n.Bounds().Dy()
	out := make([]float64, 0, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := n.PixOffset(x, y)
			out = append(out, float64(n.Pix[i+0]), float64(n.Pix[i+1]), float64(n.Pix[i+2]))
		}
	}
	return out
}

// FromRGBArray renders an (H,W,3) array back to an opaque image, rounding
// and clamping every value to a byte.
func FromRGBArray(data []float64, width, height int) (*image.NRGBA, error) {
	if len(data) != width*height*3 {
		return nil, &param.ShapeError{Got: len(data), Want: param.Shape{height, width, 3}}
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src := (y*width + x) * 3
			dst := img.PixOffset(x, y)
			img.Pix[dst+0] = toByte(data[src+0])
			img.Pix[dst+1] = toByte(data[src+1])
			img.Pix[dst+2] = toByte(data[src+2])
			img.Pix[dst+3] = 255
		}
	}
	return img, nil
}

// ToTensor converts img to a (3,H,W) tensor with values in [0,1].
func ToTensor(img image.Image) *nn.Tensor {
	n := ToNRGBA(img)
	w, h := n.Bounds().Dx(), n.Bounds().Dy()
	t := nn.NewTensor(param.Shape{3, h, w})
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := n.PixOffset(x, y)
			p := y*w + x
			for c := 0; c < 3; c++ {
				t.Data[c*plane+p] = float64(n.Pix[i+c]) / 255
			}
		}
	}
	return t
}

// FromTensor renders a (3,H,W) tensor with values in [0,1] to an image.
func FromTensor(t *nn.Tensor) (*image.NRGBA, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if len(t.Shape) != 3 || t.Shape[0] != 3 {
		return nil, fmt.Errorf("expected (3,H,W) tensor, got %s", t.Shape)
	}
	h, w := t.Shape[1], t.Shape[2]
	plane := w * h
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			p := y*w + x
			for c := 0; c < 3; c++ {
				img.Pix[i+c] = toByte(t.Data[c*plane+p] * 255)
			}
			img.Pix[i+3] = 255
		}
	}
	return img, nil
}

func toByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
