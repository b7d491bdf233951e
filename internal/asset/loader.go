// Package asset loads atomic asset definitions from .msh files: YAML
// documents bundling an ingestion source, a SQL transformation, and
// documentation into one versioned artifact.
package asset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/atomstack-labs/atomsh/internal/refs"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

// DefaultTransform is used when an asset with an ingestion source omits
// the transform block.
const DefaultTransform = "SELECT * FROM {{ source }}"

var namePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// file is the on-disk YAML shape of one .msh asset definition.
type file struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Ingest      *ingestFile `yaml:"ingest"`
	Transform   string      `yaml:"transform"`
}

type ingestFile struct {
	Type        string           `yaml:"type"`
	Credentials string           `yaml:"credentials"`
	Table       string           `yaml:"table"`
	Endpoint    string           `yaml:"endpoint"`
	Resource    string           `yaml:"resource"`
	Columns     []string         `yaml:"columns"`
	Rows        []map[string]any `yaml:"rows"`
}

// Loader discovers and parses asset definitions.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader. logger may be nil.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger}
}

// LoadDir loads every .msh file under dir (recursively) and returns the
// parsed assets sorted by file path. Name uniqueness is validated later
// by graph construction, which sees the whole set at once.
func (l *Loader) LoadDir(dir string) ([]*core.Asset, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".msh") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan models directory %s: %w", dir, err)
	}
	sort.Strings(paths)

	// Files parse independently; results keep path order.
	assets := make([]*core.Asset, len(paths))
	var g errgroup.Group
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			a, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			assets[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.logger.Debug("loaded asset definitions", "dir", dir, "count", len(assets))
	return assets, nil
}

// LoadFile parses and validates a single .msh file.
func (l *Loader) LoadFile(path string) (*core.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset file %s: %w", path, err)
	}
	return l.Parse(data, path)
}

// Parse parses a .msh document. filePath is used in error messages only.
func (l *Loader) Parse(data []byte, filePath string) (*core.Asset, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", filePath, err)
	}

	if f.Name == "" {
		return nil, &core.DefinitionError{Detail: fmt.Sprintf("asset in %s has no name", filePath)}
	}
	if !namePattern.MatchString(f.Name) {
		return nil, &core.DefinitionError{
			Asset:  f.Name,
			Detail: fmt.Sprintf("invalid asset name in %s: must match %s", filePath, namePattern),
		}
	}

	spec, err := parseIngest(f.Name, f.Ingest)
	if err != nil {
		return nil, err
	}

	transform := strings.TrimSpace(f.Transform)
	if transform == "" {
		if spec == nil {
			return nil, &core.DefinitionError{
				Asset:  f.Name,
				Detail: "asset has neither an ingest block nor a transform",
			}
		}
		transform = DefaultTransform
	}

	return &core.Asset{
		Name:        f.Name,
		Description: f.Description,
		FilePath:    filePath,
		Ingest:      spec,
		Transform:   transform,
		ContentHash: refs.Hash(transform),
	}, nil
}

func parseIngest(asset string, f *ingestFile) (*core.IngestSpec, error) {
	if f == nil {
		return nil, nil
	}

	spec := &core.IngestSpec{
		Kind:        core.IngestKind(f.Type),
		Credentials: expandEnvVars(f.Credentials),
		Table:       f.Table,
		Endpoint:    f.Endpoint,
		Resource:    f.Resource,
		Columns:     f.Columns,
		Rows:        f.Rows,
	}

	switch spec.Kind {
	case core.IngestSQLDatabase:
		if spec.Credentials == "" || spec.Table == "" {
			return nil, &core.DefinitionError{
				Asset:  asset,
				Detail: "sql_database ingest requires credentials and table",
			}
		}
	case core.IngestRESTAPI:
		if spec.Endpoint == "" {
			return nil, &core.DefinitionError{
				Asset:  asset,
				Detail: "rest_api ingest requires an endpoint",
			}
		}
	case core.IngestInline:
		if len(spec.Rows) == 0 {
			return nil, &core.DefinitionError{
				Asset:  asset,
				Detail: "inline_source ingest requires rows",
			}
		}
	default:
		return nil, &core.DefinitionError{
			Asset:  asset,
			Detail: fmt.Sprintf("unknown ingest type %q", f.Type),
		}
	}

	return spec, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} references so credentials never need to be
// stored in asset files directly.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
}
