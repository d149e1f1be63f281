package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/templates"
)

// LoadTemplatesFromFiles parses every template file in dirPath and upserts it into the store.
// Malformed files are logged and skipped so one bad file does not block startup.
func LoadTemplatesFromFiles(ctx context.Context, templateStorage interfaces.TemplateStorage, dirPath string, logger arbor.ILogger) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		logger.Debug().Str("dir", dirPath).Msg("Templates directory does not exist, skipping")
		return nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read templates directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := templates.FormatFromPath(entry.Name()); !ok {
			continue
		}

		stored, err := templates.ParseFile(filepath.Join(dirPath, entry.Name()))
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse template file")
			continue
		}

		if err := templateStorage.SaveTemplate(ctx, stored); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Str("template_id", stored.ID).Msg("Failed to save template")
			continue
		}

		logger.Debug().
			Str("file", entry.Name()).
			Str("template_id", stored.ID).
			Int("slots", len(stored.Spec.Slots)).
			Int("overlays", len(stored.Overlays)).
			Msg("Template loaded from file")
		loadedCount++
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Str("dir", dirPath).Msg("Templates loaded from files")
	} else {
		logger.Debug().Str("dir", dirPath).Msg("No templates loaded from files")
	}
	return nil
}

// LoadBuiltinTemplates upserts the embedded templates. Call before LoadTemplatesFromFiles
// so a file with the same id replaces the built-in.
func LoadBuiltinTemplates(ctx context.Context, templateStorage interfaces.TemplateStorage, logger arbor.ILogger) error {
	builtins, err := templates.Builtin()
	if err != nil {
		return fmt.Errorf("failed to parse built-in templates: %w", err)
	}

	for _, stored := range builtins {
		if err := templateStorage.SaveTemplate(ctx, stored); err != nil {
			return fmt.Errorf("failed to save built-in template %s: %w", stored.ID, err)
		}
		logger.Debug().Str("template_id", stored.ID).Str("source", stored.Source).Msg("Built-in template loaded")
	}

	logger.Info().Int("count", len(builtins)).Msg("Built-in templates loaded")
	return nil
}
