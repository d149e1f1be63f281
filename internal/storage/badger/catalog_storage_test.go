package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/models"
)

func TestClipStorage_ListByProperty(t *testing.T) {
	db := newTestDB(t)
	storage := NewClipStorage(db, arbor.NewLogger())
	ctx := context.Background()

	clips := []*models.CandidateClip{
		{ID: "clip-b", PropertyID: "casa-azul", SourceRef: "casa/b.mp4", Description: "hotel bedroom", AvailableDuration: 10},
		{ID: "clip-a", PropertyID: "casa-azul", SourceRef: "casa/a.mp4", Description: "pool deck", AvailableDuration: 10},
		{ID: "clip-z", PropertyID: "other", SourceRef: "other/z.mp4", Description: "lobby", AvailableDuration: 6},
	}
	for _, c := range clips {
		require.NoError(t, storage.SaveClip(ctx, c))
	}
	assert.Error(t, storage.SaveClip(ctx, &models.CandidateClip{ID: "orphan"}))

	got, err := storage.ListCandidateClips(ctx, "casa-azul")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "clip-a", got[0].ID)
	assert.Equal(t, "clip-b", got[1].ID)

	none, err := storage.ListCandidateClips(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, storage.DeleteClip(ctx, "clip-a"))
	got, err = storage.ListCandidateClips(ctx, "casa-azul")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTemplateStorage_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewTemplateStorage(db, arbor.NewLogger())
	ctx := context.Background()

	tmpl := &models.StoredTemplate{
		ID:   "resort-teaser",
		Name: "Resort teaser",
		Spec: models.TemplateSpec{
			ID:     "resort-teaser",
			Slots:  []models.ClipSlot{{Order: 0, TargetDuration: 3, Description: "pool"}},
			Output: models.DefaultOutputProfile(),
		},
		Overlays: []models.TextOverlay{{Content: "Hi", StartTime: 0, EndTime: 2}},
	}
	require.NoError(t, storage.SaveTemplate(ctx, tmpl))

	got, err := storage.GetTemplate(ctx, "resort-teaser")
	require.NoError(t, err)
	assert.Equal(t, tmpl.Spec, got.Spec)
	assert.Equal(t, tmpl.Overlays, got.Overlays)

	_, err = storage.GetTemplate(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrTemplateNotFound)
	assert.True(t, models.IsPermanent(err))

	all, err := storage.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLoadFromFiles_SkipsBadFiles(t *testing.T) {
	db := newTestDB(t)
	manager := newManager(db, arbor.NewLogger())
	ctx := context.Background()

	templatesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templatesDir, "teaser.json"),
		[]byte(`{"clips":[{"order":0,"duration":3,"description":"pool"}]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(templatesDir, "broken.json"),
		[]byte(`{"clips":[]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(templatesDir, "README.md"), []byte("ignored"), 0644))

	catalogDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(catalogDir, "casa-azul.toml"), []byte(`
property_id = "casa-azul"

[[clips]]
id = "pool-1"
source_ref = "casa/pool.mp4"
description = "pool deck"
available_duration = 10.0

[[clips]]
id = "bad-1"
source_ref = "casa/bad.mp4"
available_duration = 0.0
`), 0644))

	require.NoError(t, manager.LoadTemplatesFromFiles(ctx, templatesDir))
	require.NoError(t, manager.LoadCatalogFromFiles(ctx, catalogDir))
	require.NoError(t, manager.LoadTemplatesFromFiles(ctx, filepath.Join(templatesDir, "missing")))

	all, err := manager.TemplateStorage().ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "teaser", all[0].ID)

	clips, err := manager.ClipStorage().ListCandidateClips(ctx, "casa-azul")
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, "pool-1", clips[0].ID)
}

func TestLoadBuiltinTemplates_FileOverridesBuiltin(t *testing.T) {
	db := newTestDB(t)
	manager := newManager(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, manager.LoadBuiltinTemplates(ctx))

	all, err := manager.TemplateStorage().ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	templatesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templatesDir, "city_stay.json"),
		[]byte(`{"id":"city_stay","clips":[{"order":0,"duration":5,"description":"skyline"}]}`), 0644))
	require.NoError(t, manager.LoadTemplatesFromFiles(ctx, templatesDir))

	city, err := manager.TemplateStorage().GetTemplate(ctx, "city_stay")
	require.NoError(t, err)
	require.Len(t, city.Spec.Slots, 1)
	assert.Equal(t, 5.0, city.Spec.TotalDuration())

	all, err = manager.TemplateStorage().ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
