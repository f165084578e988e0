//go:build cgo

package render

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/glyphora/glyph-indexer/internal/adapter"
)

const svgContentType = "image/svg+xml"

// RasterizerConfig holds the configuration for the SVG rasterizer
type RasterizerConfig struct {
	// OutputDir is the directory preview files are written to
	OutputDir string
	// Width is the output width in pixels (0 = natural SVG size)
	Width int
}

// rasterizer renders on-chain SVG artwork to PNG previews via resvg
type rasterizer struct {
	resvg   adapter.ResvgClient
	encoder adapter.ImageEncoder
	fs      adapter.FileSystem
	clock   adapter.Clock
	config  RasterizerConfig
}

// NewRasterizer creates a new SVG rasterizer and ensures the output
// directory exists
func NewRasterizer(
	resvgClient adapter.ResvgClient,
	encoder adapter.ImageEncoder,
	fs adapter.FileSystem,
	clock adapter.Clock,
	cfg RasterizerConfig,
) (Renderer, error) {
	if err := fs.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &rasterizer{
		resvg:   resvgClient,
		encoder: encoder,
		fs:      fs,
		clock:   clock,
		config:  cfg,
	}, nil
}

// Render rasterizes SVG content to a PNG preview file
func (r *rasterizer) Render(ctx context.Context, content string, contentType string, meta Metadata) (string, error) {
	if contentType != svgContentType {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}

	img, err := r.resvg.Render([]byte(content), r.config.Width)
	if err != nil {
		return "", fmt.Errorf("failed to rasterize %q: %w", meta.Name, err)
	}

	fileName := ulid.MustNewDefault(r.clock.Now()).String() + ".png"
	filePath := filepath.Join(r.config.OutputDir, fileName)

	file, err := r.fs.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create preview file: %w", err)
	}

	if err := r.encoder.EncodePNG(file, img); err != nil {
		_ = file.Close()
		_ = r.fs.Remove(filePath)
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close preview file: %w", err)
	}

	return filePath, nil
}
