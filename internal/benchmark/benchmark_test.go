package benchmark

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cwbudde/imagebench/internal/imaging"
	"github.com/cwbudde/imagebench/internal/nn"
	"github.com/cwbudde/imagebench/internal/objective"
	"github.com/cwbudde/imagebench/internal/param"
)

// signClassifier predicts class 1 when the input sums to a positive value
// and class 0 otherwise.
type signClassifier struct{}

func (signClassifier) Forward(batch []*nn.Tensor) ([][]float64, error) {
	out := make([][]float64, len(batch))
	for i, x := range batch {
		var sum float64
		for _, v := range x.Data {
			sum += v
		}
		if sum > 0 {
			out[i] = []float64{0, 1}
		} else {
			out[i] = []float64{1, 0}
		}
	}
	return out, nil
}

type brokenClassifier struct{}

func (brokenClassifier) Forward([]*nn.Tensor) ([][]float64, error) {
	return nil, errors.New("out of memory")
}

var smallShape = param.Shape{3, 4, 4}

func filled(v float64) *nn.Tensor {
	t := nn.NewTensor(smallShape)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

func testSamples() []imaging.Sample {
	return []imaging.Sample{
		{Image: filled(0), Label: 0}, // correct
		{Image: filled(1), Label: 0}, // wrong
		{Image: filled(1), Label: 1}, // correct
		{Image: filled(0), Label: 1}, // wrong
	}
}

func TestMakeTestPreset(t *testing.T) {
	seq, err := Make(Test, DefaultConfig())
	if err != nil {
		t.Fatalf("Make failed: %v", err)
	}

	fns, err := seq.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(fns) != 1 {
		t.Fatalf("Expected exactly one instance, got %d", len(fns))
	}

	fn := fns[0]
	if got := fn.Descriptors()["benchmark"]; got != Test {
		t.Errorf("benchmark tag = %q, want %q", got, Test)
	}
	if fn.Label() != 0 || fn.Targeted() || fn.Epsilon() != 0.05 {
		t.Errorf("Unexpected instance: label=%d targeted=%v eps=%f", fn.Label(), fn.Targeted(), fn.Epsilon())
	}
	if want := (param.Shape{3, 224, 224}); !fn.Domain().Shape().Equal(want) {
		t.Errorf("Shape = %s, want %s", fn.Domain().Shape(), want)
	}

	v, err := fn.Evaluate(make([]float64, fn.Domain().Dim()))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if v >= 0 {
		t.Errorf("Untargeted fitness = %f, want negative", v)
	}
}

func TestMakeTestPresetDeterministic(t *testing.T) {
	eval := func(seed uint64) float64 {
		seq, err := Make(Test, Config{Seed: seed, ImageSize: 8})
		if err != nil {
			t.Fatalf("Make failed: %v", err)
		}
		fn, err := seq.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		v, err := fn.Evaluate(make([]float64, fn.Domain().Dim()))
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		return v
	}

	if a, b := eval(3), eval(3); a != b {
		t.Errorf("Same seed gave %f and %f", a, b)
	}
	if a, b := eval(3), eval(4); a == b {
		t.Errorf("Different seeds gave the same value %f", a)
	}
}

func TestMakeUnknown(t *testing.T) {
	_, err := Make("nonsense", DefaultConfig())
	if !errors.Is(err, ErrUnknownBenchmark) {
		t.Fatalf("Expected UnknownBenchmarkError, got %v", err)
	}
	var uerr *UnknownBenchmarkError
	if errors.As(err, &uerr) && uerr.Name != "nonsense" {
		t.Errorf("Name = %q", uerr.Name)
	}
}

func TestSequenceExhausted(t *testing.T) {
	seq, err := Make(Test, Config{ImageSize: 4})
	if err != nil {
		t.Fatalf("Make failed: %v", err)
	}
	ctx := context.Background()

	if _, err := seq.Next(ctx); err != nil {
		t.Fatalf("First Next failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := seq.Next(ctx); !errors.Is(err, io.EOF) {
			t.Errorf("Next after exhaustion returned %v, want io.EOF", err)
		}
	}
	if seq.Yielded() != 1 {
		t.Errorf("Yielded = %d, want 1", seq.Yielded())
	}
	if fns, err := seq.Collect(ctx); err != nil || len(fns) != 0 {
		t.Errorf("Collect on exhausted sequence = %d, %v", len(fns), err)
	}
}

func TestImageNetYieldsCorrectlyClassified(t *testing.T) {
	seq, err := Make(ImageNet, Config{
		Classifier: signClassifier{},
		Provider:   imaging.NewSliceProvider(testSamples()),
		ImageSize:  4,
	})
	if err != nil {
		t.Fatalf("Make failed: %v", err)
	}

	fns, err := seq.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var labels []int
	var samples []string
	for _, fn := range fns {
		labels = append(labels, fn.Label())
		samples = append(samples, fn.Descriptors()["sample"])
		if fn.Targeted() || fn.Epsilon() != 0.05 || fn.Descriptors()["benchmark"] != ImageNet {
			t.Errorf("Unexpected instance descriptors: %s", fn.Descriptors())
		}
	}
	if diff := cmp.Diff([]int{0, 1}, labels); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0", "2"}, samples); diff != "" {
		t.Errorf("Sample indices mismatch (-want +got):\n%s", diff)
	}
}

func TestImageNetAt(t *testing.T) {
	newSeq := func() *Sequence {
		seq, err := Make(ImageNet, Config{Classifier: signClassifier{}, Provider: imaging.NewSliceProvider(testSamples())})
		if err != nil {
			t.Fatalf("Make failed: %v", err)
		}
		return seq
	}
	ctx := context.Background()

	fn, err := newSeq().At(ctx, 1)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	if fn.Label() != 1 {
		t.Errorf("At(1) label = %d, want 1", fn.Label())
	}
	if _, err := newSeq().At(ctx, 2); !errors.Is(err, io.EOF) {
		t.Errorf("At beyond the end returned %v, want io.EOF", err)
	}
	if _, err := newSeq().At(ctx, -1); !errors.Is(err, &param.ConfigError{}) {
		t.Errorf("Negative index returned %v, want ConfigError", err)
	}
}

func TestImageNetConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"no classifier", Config{Provider: imaging.NewSliceProvider(nil)}, "Classifier"},
		{"no data", Config{Classifier: signClassifier{}}, "DataDir"},
		{"negative size", Config{Classifier: signClassifier{}, DataDir: "x", ImageSize: -1}, "ImageSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Make(ImageNet, tt.cfg)
			var cerr *param.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestMakeValidatesEagerly(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	empty := t.TempDir()

	tests := []struct {
		name   string
		preset string
		cfg    Config
		field  string
	}{
		{"negative epsilon", Test, Config{Epsilon: -0.1}, "Epsilon"},
		{"infinite epsilon", Test, Config{Epsilon: math.Inf(1)}, "Epsilon"},
		{"negative epsilon imagenet", ImageNet, Config{Classifier: signClassifier{}, Provider: imaging.NewSliceProvider(nil), Epsilon: -1}, "Epsilon"},
		{"missing folder", ImageNet, Config{Classifier: signClassifier{}, DataDir: missing}, "DataDir"},
		{"folder without classes", ImageNet, Config{Classifier: signClassifier{}, DataDir: empty}, "DataDir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := Make(tt.preset, tt.cfg)
			var cerr *param.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Expected ConfigError from Make, got %v (sequence %v)", err, seq)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestImageNetClassifierError(t *testing.T) {
	seq, err := Make(ImageNet, Config{Classifier: brokenClassifier{}, Provider: imaging.NewSliceProvider(testSamples())})
	if err != nil {
		t.Fatalf("Make failed: %v", err)
	}
	if _, err := seq.Next(context.Background()); !errors.Is(err, &objective.EvaluationError{}) {
		t.Errorf("Expected EvaluationError, got %v", err)
	}
}

func TestNextCancelled(t *testing.T) {
	seq, _ := Make(Test, Config{ImageSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := seq.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func writeSolidPNG(t *testing.T, path string, v uint8) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestImageNetFromFolder(t *testing.T) {
	root := t.TempDir()
	writeSolidPNG(t, filepath.Join(root, "a", "black.png"), 0)
	writeSolidPNG(t, filepath.Join(root, "a", "white.png"), 255)
	writeSolidPNG(t, filepath.Join(root, "b", "white.png"), 255)

	seq, err := Make(ImageNet, Config{Classifier: signClassifier{}, DataDir: root, ImageSize: 4})
	if err != nil {
		t.Fatalf("Make failed: %v", err)
	}
	fns, err := seq.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var got []string
	for _, fn := range fns {
		got = append(got, filepath.Base(filepath.Dir(fn.Descriptors()["path"]))+"/"+filepath.Base(fn.Descriptors()["path"]))
		if !fn.Domain().Shape().Equal(param.Shape{3, 4, 4}) {
			t.Errorf("Shape = %s", fn.Domain().Shape())
		}
	}
	if diff := cmp.Diff([]string{"a/black.png", "b/white.png"}, got); diff != "" {
		t.Errorf("Yielded images mismatch (-want +got):\n%s", diff)
	}
}

func TestNames(t *testing.T) {
	if diff := cmp.Diff([]string{"imagenet", "test"}, Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}
