package imaging

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func TestFileCodecDecodeAndResize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solid.png")
	writePNG(t, path, solidImage(40, 20, color.NRGBA{R: 10, G: 200, B: 30, A: 255}))

	codec := FileCodec{}
	img, err := codec.Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	resized := ToNRGBA(codec.Resize(img, 16, 16))
	if resized.Bounds().Dx() != 16 || resized.Bounds().Dy() != 16 {
		t.Fatalf("Unexpected size %v", resized.Bounds())
	}
	// A solid image stays solid under resampling.
	got := resized.NRGBAAt(8, 8)
	if absDiff(got.R, 10) > 1 || absDiff(got.G, 200) > 1 || absDiff(got.B, 30) > 1 {
		t.Errorf("Resized pixel = %v, want about {10 200 30}", got)
	}
}

func absDiff(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

func TestFileCodecDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := (FileCodec{}).Decode(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}

	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := (FileCodec{}).Decode(garbage); err == nil {
		t.Error("Expected error for undecodable file")
	}
}

func TestRGBArrayDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 4, G: 5, B: 6, A: 255})

	got := RGBArray(img)
	want := []float64{1, 2, 3, 4, 5, 6}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RGBArray mismatch (-want +got):\n%s", diff)
	}
}

func TestFromRGBArrayRoundTrip(t *testing.T) {
	data := []float64{0, 127.6, 300, -4, 255, 12}
	img, err := FromRGBArray(data, 2, 1)
	if err != nil {
		t.Fatalf("FromRGBArray failed: %v", err)
	}
	got := RGBArray(img)
	want := []float64{0, 128, 255, 0, 255, 12}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}

	if _, err := FromRGBArray(data, 3, 1); err == nil {
		t.Error("Expected shape error")
	}
}

func TestTensorRoundTrip(t *testing.T) {
	src := solidImage(3, 2, color.NRGBA{R: 255, G: 51, B: 0, A: 255})
	tensor := ToTensor(src)

	if diff := cmp.Diff([]int{3, 2, 3}, []int(tensor.Shape)); diff != "" {
		t.Fatalf("Shape mismatch (-want +got):\n%s", diff)
	}
	if tensor.Data[0] != 1 || tensor.Data[6] != 0.2 || tensor.Data[12] != 0 {
		t.Errorf("Unexpected channel planes: %v", tensor.Data)
	}

	back, err := FromTensor(tensor)
	if err != nil {
		t.Fatalf("FromTensor failed: %v", err)
	}
	if back.NRGBAAt(1, 1) != src.NRGBAAt(1, 1) {
		t.Errorf("Pixel mismatch: got %v, want %v", back.NRGBAAt(1, 1), src.NRGBAAt(1, 1))
	}
}

func TestResizeCenterCrop(t *testing.T) {
	img := solidImage(60, 30, color.NRGBA{R: 9, G: 9, B: 9, A: 255})
	out := ResizeCenterCrop(FileCodec{}, img, 10)
	if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 10 {
		t.Fatalf("Unexpected crop size %v", out.Bounds())
	}
}

func TestFolderProvider(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "cat", "a.png"), solidImage(8, 8, color.NRGBA{R: 255, A: 255}))
	writePNG(t, filepath.Join(root, "cat", "b.png"), solidImage(8, 8, color.NRGBA{R: 255, A: 255}))
	writePNG(t, filepath.Join(root, "ant", "c.png"), solidImage(8, 8, color.NRGBA{G: 255, A: 255}))
	if err := os.WriteFile(filepath.Join(root, "ant", "notes.txt"), []byte("skip"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	p, err := NewFolderProvider(FolderConfig{Root: root, ImageSize: 4})
	if err != nil {
		t.Fatalf("NewFolderProvider failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ant", "cat"}, p.Classes()); diff != "" {
		t.Errorf("Classes mismatch (-want +got):\n%s", diff)
	}
	if p.Len() != 3 {
		t.Fatalf("Expected 3 images, got %d", p.Len())
	}

	ctx := context.Background()
	var labels []int
	for {
		s, err := p.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if s.Image.Shape.Size() != 3*4*4 {
			t.Errorf("Sample %s has shape %s", s.Path, s.Image.Shape)
		}
		labels = append(labels, s.Label)
	}
	if diff := cmp.Diff([]int{0, 1, 1}, labels); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}

	// Exhausted providers keep reporting EOF.
	if _, err := p.Next(ctx); err != io.EOF {
		t.Errorf("Expected io.EOF after exhaustion, got %v", err)
	}
}

func TestFolderProviderShuffleDeterministic(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		writePNG(t, filepath.Join(root, "only", name+".png"), solidImage(2, 2, color.NRGBA{A: 255}))
	}
	order := func() []string {
		p, err := NewFolderProvider(FolderConfig{Root: root, ImageSize: 2, Shuffle: true, Seed: 99})
		if err != nil {
			t.Fatalf("NewFolderProvider failed: %v", err)
		}
		var paths []string
		for _, it := range p.items {
			paths = append(paths, it.path)
		}
		return paths
	}
	if diff := cmp.Diff(order(), order()); diff != "" {
		t.Errorf("Shuffle not deterministic (-first +second):\n%s", diff)
	}
}

func TestFolderProviderErrors(t *testing.T) {
	if _, err := NewFolderProvider(FolderConfig{Root: "", ImageSize: 4}); err == nil {
		t.Error("Expected error for empty root")
	}
	if _, err := NewFolderProvider(FolderConfig{Root: t.TempDir(), ImageSize: 4}); err == nil {
		t.Error("Expected error for root without classes")
	}
	if _, err := NewFolderProvider(FolderConfig{Root: t.TempDir(), ImageSize: 0}); err == nil {
		t.Error("Expected error for zero image size")
	}
}

func TestSliceProvider(t *testing.T) {
	p := NewSliceProvider([]Sample{{Label: 3}, {Label: 5}})
	ctx := context.Background()
	for _, want := range []int{3, 5} {
		s, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if s.Label != want {
			t.Errorf("Label = %d, want %d", s.Label, want)
		}
	}
	if _, err := p.Next(ctx); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}
