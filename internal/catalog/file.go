package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/aquaflora/stockscan/internal/model"
)

// FileSource reads the catalog from a JSON file on disk. A document without
// updated_at takes the file's modification time.
type FileSource struct {
	Path string
}

// Fetch reads and decodes the file.
func (f FileSource) Fetch(ctx context.Context) (*model.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat catalog file: %w", err)
	}
	return DecodeCatalog(fh, info.ModTime().UTC())
}
