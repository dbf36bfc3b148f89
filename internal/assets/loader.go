package assets

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/printworks/photoflow/internal/models"
)

// Loader provides raw image bytes for assets. Loading may be slow and may
// fail; callers treat failures as unrecoverable for the asset.
type Loader interface {
	// ImageData returns the image bytes and the format extension (jpeg, png)
	ImageData(ctx context.Context, asset *models.Asset) ([]byte, string, error)
}

// FileLoader loads asset bytes from the local filesystem
type FileLoader struct{}

// NewFileLoader creates new FileLoader instance
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

// ImageData reads the asset's file and sniffs its format
func (l *FileLoader) ImageData(ctx context.Context, asset *models.Asset) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(asset.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", models.ErrAssetLoad, err)
	}

	switch http.DetectContentType(data) {
	case "image/jpeg":
		return data, "jpeg", nil
	case "image/png":
		return data, "png", nil
	default:
		return nil, "", fmt.Errorf("%w: asset %s", models.ErrUnsupportedFormat, asset.Identifier)
	}
}
