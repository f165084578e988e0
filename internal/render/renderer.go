package render

import "context"

// Metadata carries the descriptive fields passed alongside artwork content
type Metadata struct {
	Name        string
	Description string
}

// Renderer turns raw artwork content into a preview file on disk. Rendering
// is fallible; a returned error marks the job failed with no automatic retry.
//
//go:generate mockgen -source=renderer.go -destination=../mocks/renderer.go -package=mocks -mock_names=Renderer=MockRenderer
type Renderer interface {
	// Render produces a preview image and returns the path it was written to
	Render(ctx context.Context, content string, contentType string, meta Metadata) (string, error)
}
