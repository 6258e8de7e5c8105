package imaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/rand"

	"github.com/cwbudde/imagebench/internal/nn"
)

// Sample is one labelled image, already preprocessed for a classifier.
type Sample struct {
	Image *nn.Tensor
	Label int
	Path  string // Source file, empty for in-memory samples
}

// DataProvider yields labelled samples one at a time. Next returns io.EOF
// once the data is exhausted and on every call after that.
type DataProvider interface {
	Next(ctx context.Context) (Sample, error)
}

// SliceProvider serves samples from memory in order.
type SliceProvider struct {
	samples []Sample
	pos     int
}

// NewSliceProvider creates a provider over samples.
func NewSliceProvider(samples []Sample) *SliceProvider {
	return &SliceProvider{samples: samples}
}

func (p *SliceProvider) Next(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	if p.pos >= len(p.samples) {
		return Sample{}, io.EOF
	}
	s := p.samples[p.pos]
	p.pos++
	return s, nil
}

// FolderConfig configures a FolderProvider.
type FolderConfig struct {
	Root      string // One subdirectory per class
	ImageSize int    // Side of the square crop fed to the classifier
	Shuffle   bool
	Seed      uint64
	Codec     Codec // Defaults to FileCodec
}

// FolderProvider reads an image-folder dataset: every subdirectory of Root
// is a class, classes are numbered in sorted name order, and every image file
// inside a class directory is one sample. Images are decoded lazily.
type FolderProvider struct {
	cfg     FolderConfig
	classes []string
	items   []folderItem
	pos     int
}

type folderItem struct {
	path  string
	label int
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// NewFolderProvider scans cfg.Root and returns a provider over its images.
func NewFolderProvider(cfg FolderConfig) (*FolderProvider, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("dataset root cannot be empty")
	}
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", cfg.ImageSize)
	}
	if cfg.Codec == nil {
		cfg.Codec = FileCodec{}
	}

	entries, err := os.ReadDir(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset root: %w", err)
	}

	var classes []string
	for _, e := range entries {
		if e.IsDir() {
			classes = append(classes, e.Name())
		}
	}
	sort.Strings(classes)
	if len(classes) == 0 {
		return nil, fmt.Errorf("dataset root %s has no class directories", cfg.Root)
	}

	var items []folderItem
	for label, class := range classes {
		dir := filepath.Join(cfg.Root, class)
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read class directory %s: %w", class, err)
		}
		for _, f := range files {
			if f.IsDir() || !imageExts[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			items = append(items, folderItem{path: filepath.Join(dir, f.Name()), label: label})
		}
	}

	if cfg.Shuffle {
		rng := rand.New(rand.NewSource(cfg.Seed))
		rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	}

	slog.Debug("Scanned image folder", "root", cfg.Root, "classes", len(classes), "images", len(items))

	return &FolderProvider{cfg: cfg, classes: classes, items: items}, nil
}

// Classes returns the class names indexed by label.
func (p *FolderProvider) Classes() []string {
	return append([]string(nil), p.classes...)
}

// Len returns the number of images found.
func (p *FolderProvider) Len() int { return len(p.items) }

func (p *FolderProvider) Next(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	if p.pos >= len(p.items) {
		return Sample{}, io.EOF
	}
	item := p.items[p.pos]
	p.pos++

	img, err := p.cfg.Codec.Decode(item.path)
	if err != nil {
		return Sample{}, fmt.Errorf("%s: %w", item.path, err)
	}
	crop := ResizeCenterCrop(p.cfg.Codec, img, p.cfg.ImageSize)
	return Sample{Image: ToTensor(crop), Label: item.label, Path: item.path}, nil
}
