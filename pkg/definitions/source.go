package definitions

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/lmsauthz/pkg/rbac"
)

// Source fetches the raw bytes of a definition table
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// FileSource reads a YAML or JSON table from the local filesystem
type FileSource struct {
	Path string
}

// Fetch implements Source
func (s FileSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	return data, nil
}

func (s FileSource) String() string {
	return "file://" + s.Path
}

// LoadCatalog fetches, parses and validates a table from src
func LoadCatalog(ctx context.Context, src Source) (*rbac.Catalog, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	def, err := rbac.ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", src, err)
	}

	catalog, err := rbac.NewCatalog(def)
	if err != nil {
		return nil, fmt.Errorf("invalid definition table %s: %w", src, err)
	}
	return catalog, nil
}
