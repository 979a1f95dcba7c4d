package internal

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed schema/catalog.schema.json
var catalogSchemaJSON []byte

// CatalogLoader reads catalog configuration files from a directory.
type CatalogLoader struct {
	directory      string
	format         string
	validateSchema bool
	schema         *jsonschema.Resolved
}

// NewCatalogLoader creates a loader for directory. format is "json" or
// "yaml"; files of either format are accepted but format decides which
// extension is tried first when both exist for the same base name.
func NewCatalogLoader(directory, format string, validateSchema bool) (*CatalogLoader, error) {
	loader := &CatalogLoader{directory: directory, format: format, validateSchema: validateSchema}
	if validateSchema {
		var schema jsonschema.Schema
		if err := json.Unmarshal(catalogSchemaJSON, &schema); err != nil {
			return nil, fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
		}
		resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve catalog schema: %w", err)
		}
		loader.schema = resolved
	}
	return loader, nil
}

// Load reads every .json, .yaml and .yml file in the directory, in name order,
// and concatenates them into one document.
func (l *CatalogLoader) Load() (*CatalogDocument, error) {
	entries, err := os.ReadDir(l.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	files := l.catalogFiles(entries)
	if len(files) == 0 {
		return nil, fmt.Errorf("no catalog files found in %s", l.directory)
	}

	doc := &CatalogDocument{}
	for _, name := range files {
		path := filepath.Join(l.directory, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
		}
		part, err := l.Parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
		}
		doc.Append(*part)
		zap.S().Infow("loaded catalog file", "file", path,
			"dimensions", len(part.Dimensions), "metrics", len(part.Metrics),
			"physicalTables", len(part.PhysicalTables), "logicalTables", len(part.LogicalTables))
	}
	return doc, nil
}

func (l *CatalogLoader) catalogFiles(entries []os.DirEntry) []string {
	preferred := ".json"
	if l.format == "yaml" {
		preferred = ".yaml"
	}
	chosen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if existing, ok := chosen[base]; ok {
			if strings.ToLower(filepath.Ext(existing)) == preferred {
				zap.S().Warnw("ignoring duplicate catalog file", "file", e.Name(), "using", existing)
				continue
			}
			zap.S().Warnw("ignoring duplicate catalog file", "file", existing, "using", e.Name())
		}
		chosen[base] = e.Name()
	}
	files := make([]string, 0, len(chosen))
	for _, name := range chosen {
		files = append(files, name)
	}
	slices.Sort(files)
	return files
}

// Parse decodes one file's content. YAML is converted to its JSON form first
// so both formats go through the same schema validation and decoding.
func (l *CatalogLoader) Parse(name string, data []byte) (*CatalogDocument, error) {
	var raw any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
	}

	canonical, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}

	if l.schema != nil {
		var instance any
		if err := json.Unmarshal(canonical, &instance); err != nil {
			return nil, fmt.Errorf("failed to decode normalized document: %w", err)
		}
		if err := l.schema.Validate(instance); err != nil {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}
	}

	var doc CatalogDocument
	if err := json.Unmarshal(canonical, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog document: %w", err)
	}
	return &doc, nil
}

// normalizeYAML turns YAML-specific values into JSON-compatible ones:
// non-string map keys become strings and timestamps become dates.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	case time.Time:
		if t.Equal(t.Truncate(24 * time.Hour)) {
			return t.UTC().Format(time.DateOnly)
		}
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
