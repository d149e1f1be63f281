// -----------------------------------------------------------------------
// Template parsing - wire documents to TemplateSpec + overlays
// -----------------------------------------------------------------------

package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/stayreel/internal/models"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a template document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var validate = validator.New()

// FormatFromPath infers the document format from a file extension
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	}
	return "", false
}

// Parse decodes a template document into a TemplateSpec and its overlays.
// Clips are returned sorted by order. Any unusable input yields *models.MalformedTemplateError.
func Parse(data []byte, format Format) (*models.TemplateSpec, []models.TextOverlay, error) {
	file, err := decode(data, format)
	if err != nil {
		return nil, nil, &models.MalformedTemplateError{Reason: err.Error()}
	}
	return Build(file)
}

// Build converts a decoded wire document into the typed template
func Build(file *File) (*models.TemplateSpec, []models.TextOverlay, error) {
	malformed := func(format string, args ...interface{}) error {
		return &models.MalformedTemplateError{TemplateID: file.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if len(file.Clips) == 0 {
		return nil, nil, malformed("template has no clips")
	}

	// Duration check first so the error names the offending clip rather than a struct path
	for i, c := range file.Clips {
		if c.Duration <= 0 {
			return nil, nil, malformed("clip %d (order %d) has non-positive duration %.3f", i, c.Order, c.Duration)
		}
	}

	if err := validate.Struct(file); err != nil {
		return nil, nil, malformed("%s", describeValidation(err))
	}

	clips := make([]ClipFile, len(file.Clips))
	copy(clips, file.Clips)
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].Order < clips[j].Order })

	spec := &models.TemplateSpec{
		ID:     file.ID,
		Name:   file.Name,
		Slots:  make([]models.ClipSlot, len(clips)),
		Output: file.Output.toProfile(),
	}
	for i, c := range clips {
		if c.Order != i {
			if i > 0 && clips[i-1].Order == c.Order {
				return nil, nil, malformed("duplicate clip order %d", c.Order)
			}
			return nil, nil, malformed("clip orders must be contiguous from 0, missing order %d", i)
		}
		spec.Slots[i] = models.ClipSlot{
			Order:          c.Order,
			TargetDuration: c.Duration,
			Description:    strings.TrimSpace(c.Description),
		}
	}

	overlays := make([]models.TextOverlay, 0, len(file.Texts))
	for _, t := range file.Texts {
		overlays = append(overlays, t.toOverlay())
	}

	return spec, overlays, nil
}

// Validate re-checks an already typed spec, used before running a stored template
func Validate(spec *models.TemplateSpec) error {
	if spec == nil || len(spec.Slots) == 0 {
		id := ""
		if spec != nil {
			id = spec.ID
		}
		return &models.MalformedTemplateError{TemplateID: id, Reason: "template has no clips"}
	}
	for i, s := range spec.Slots {
		if s.TargetDuration <= 0 {
			return &models.MalformedTemplateError{
				TemplateID: spec.ID,
				Reason:     fmt.Sprintf("slot %d has non-positive duration %.3f", s.Order, s.TargetDuration),
			}
		}
		if s.Order != i {
			return &models.MalformedTemplateError{
				TemplateID: spec.ID,
				Reason:     fmt.Sprintf("slot at index %d has order %d", i, s.Order),
			}
		}
	}
	return nil
}

// ParseFile reads and parses a template file. The template ID defaults to the file name stem.
func ParseFile(path string) (*models.StoredTemplate, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported template file extension: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}

	return parseNamed(data, format, filepath.Base(path), path)
}

// parseNamed parses data, defaulting the ID to the stem of fileName
func parseNamed(data []byte, format Format, fileName, source string) (*models.StoredTemplate, error) {
	spec, overlays, err := Parse(data, format)
	if err != nil {
		return nil, err
	}

	if spec.ID == "" {
		spec.ID = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}

	return &models.StoredTemplate{
		ID:       spec.ID,
		Name:     spec.Name,
		Spec:     *spec,
		Overlays: overlays,
		Source:   source,
	}, nil
}

func decode(data []byte, format Format) (*File, error) {
	var file File
	var err error

	switch format {
	case FormatJSON, "":
		err = json.Unmarshal(data, &file)
	case FormatYAML:
		err = yaml.Unmarshal(data, &file)
	case FormatTOML:
		err = toml.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s template: %w", formatName(format), err)
	}
	return &file, nil
}

func formatName(format Format) string {
	if format == "" {
		return string(FormatJSON)
	}
	return string(format)
}

// describeValidation flattens validator errors into one readable line
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "File.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
