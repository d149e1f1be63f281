package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/ternarybob/stayreel/internal/templates"
	"gopkg.in/yaml.v3"
)

// CatalogFile lists the candidate footage of one property.
// Clips without a property_id inherit the file's.
type CatalogFile struct {
	PropertyID string                 `json:"property_id" yaml:"property_id" toml:"property_id"`
	Clips      []models.CandidateClip `json:"clips" yaml:"clips" toml:"clips"`
}

var catalogValidator = validator.New()

// LoadCatalogFromFiles seeds the clip catalog from TOML, YAML or JSON catalog files in dirPath
func LoadCatalogFromFiles(ctx context.Context, clipStorage interfaces.ClipStorage, dirPath string, logger arbor.ILogger) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		logger.Debug().Str("dir", dirPath).Msg("Catalog directory does not exist, skipping")
		return nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read catalog directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := templates.FormatFromPath(entry.Name())
		if !ok {
			continue
		}

		catalog, err := readCatalogFile(filepath.Join(dirPath, entry.Name()), format)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read catalog file")
			continue
		}

		for i := range catalog.Clips {
			clip := &catalog.Clips[i]
			if clip.PropertyID == "" {
				clip.PropertyID = catalog.PropertyID
			}
			if err := catalogValidator.Struct(clip); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("clip_id", clip.ID).Msg("Skipping invalid catalog clip")
				continue
			}
			if err := clipStorage.SaveClip(ctx, clip); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("clip_id", clip.ID).Msg("Failed to save catalog clip")
				continue
			}
			loadedCount++
		}
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Str("dir", dirPath).Msg("Catalog clips loaded from files")
	} else {
		logger.Debug().Str("dir", dirPath).Msg("No catalog clips loaded from files")
	}
	return nil
}

func readCatalogFile(path string, format templates.Format) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var catalog CatalogFile
	switch format {
	case templates.FormatTOML:
		err = toml.Unmarshal(data, &catalog)
	case templates.FormatYAML:
		err = yaml.Unmarshal(data, &catalog)
	default:
		err = json.Unmarshal(data, &catalog)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s catalog: %w", format, err)
	}
	return &catalog, nil
}
