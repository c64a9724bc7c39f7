package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Format — формат файла каталога.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// File — структура файла каталога.
//
//	steps:
//	  - id: document_ingestion
//	    name: Document Ingestion
//	    description: Parse uploaded documents
//	    duration_ms: 4000
//	    details:
//	      - name: extractedPages
//	        total: 45
type File struct {
	Steps []StepDef `json:"steps" yaml:"steps"`
}

// StepDef — описание шага в файле каталога.
type StepDef struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	DurationMs  int64              `json:"duration_ms" yaml:"duration_ms"`
	Details     []domain.MetricDef `json:"details,omitempty" yaml:"details,omitempty"`

	// Projection — "linear" (по умолчанию) или "unit:<metric>".
	Projection string `json:"projection,omitempty" yaml:"projection,omitempty"`
}

// Load читает каталог из файла. Формат определяется по расширению.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	return Parse(data, format)
}

// FormatFromPath определяет формат по расширению файла.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Parse разбирает каталог и валидирует его.
func Parse(data []byte, format Format) (*Catalog, error) {
	var f File

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	return f.Build()
}

// Build преобразует описание файла в каталог.
func (f *File) Build() (*Catalog, error) {
	steps := make([]domain.StepDescriptor, len(f.Steps))
	projections := make(Projections)

	for i, def := range f.Steps {
		steps[i] = domain.StepDescriptor{
			ID:              def.ID,
			Name:            def.Name,
			Description:     def.Description,
			NominalDuration: time.Duration(def.DurationMs) * time.Millisecond,
			Details:         def.Details,
		}

		p, err := parseProjection(def.Projection)
		if err != nil {
			return nil, NewValidationError(def.ID, "projection", err.Error(), ErrParse)
		}
		if p != nil && def.ID != "" {
			projections[def.ID] = p
		}
	}

	return New(steps, projections)
}

// parseProjection разбирает имя проекции. nil означает проекцию по умолчанию.
func parseProjection(name string) (Projection, error) {
	switch {
	case name == "" || name == "linear":
		return nil, nil
	case strings.HasPrefix(name, "unit:"):
		unit := strings.TrimPrefix(name, "unit:")
		if unit == "" {
			return nil, fmt.Errorf("unit projection requires metric name")
		}
		return UnitProjection(unit), nil
	default:
		return nil, fmt.Errorf("unknown projection %q", name)
	}
}
