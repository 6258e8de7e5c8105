package imaging

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	xdraw "golang.org/x/image/draw"
)

// Codec decodes image files and resizes decoded images.
type Codec interface {
	// Decode reads and decodes the image at path
	Decode(path string) (image.Image, error)

	// Resize scales img to exactly width x height
	Resize(img image.Image, width, height int) image.Image
}

// FileCodec reads images from the local filesystem and resizes them with a
// Catmull-Rom kernel, which antialiases on downscaling.
type FileCodec struct{}

func (FileCodec) Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func (FileCodec) Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return ToNRGBA(img)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// ToNRGBA converts img to an NRGBA image anchored at the origin.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// ResizeCenterCrop scales img so its shorter side equals size and crops the
// central size x size square.
func ResizeCenterCrop(codec Codec, img image.Image, size int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var nw, nh int
	if w <= h {
		nw = size
		nh = max(size, int(float64(h)*float64(size)/float64(w)))
	} else {
		nh = size
		nw = max(size, int(float64(w)*float64(size)/float64(h)))
	}
	scaled := ToNRGBA(codec.Resize(img, nw, nh))

	x0 := (nw - size) / 2
	y0 := (nh - size) / 2
	out := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(out, out.Bounds(), scaled, image.Pt(x0, y0), draw.Src)
	return out
}
