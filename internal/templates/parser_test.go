package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/stayreel/internal/models"
)

const resortJSON = `{
  "id": "resort-teaser",
  "name": "Resort teaser",
  "clips": [
    {"order": 2, "duration": 2.0, "description": "sunset over the bay"},
    {"order": 0, "duration": 3.0, "description": "infinity pool with ocean view"},
    {"order": 1, "duration": 4.0, "description": "king bedroom"}
  ],
  "texts": [
    {"content": "Welcome: \"Casa Azul\"", "start": 0, "end": 3, "position": {"x": 0.5, "y": 0.2}},
    {"content": "Book now", "start": 7, "end": 9, "position": {"x": 0.1, "y": 0.9}, "style": {"font_size": 40, "align": "left", "shadow": true}}
  ]
}`

func TestParse_JSONSortsClipsAndDefaultsStyle(t *testing.T) {
	spec, overlays, err := Parse([]byte(resortJSON), FormatJSON)
	require.NoError(t, err)

	require.Len(t, spec.Slots, 3)
	assert.Equal(t, "infinity pool with ocean view", spec.Slots[0].Description)
	assert.Equal(t, 1, spec.Slots[1].Order)
	assert.InDelta(t, 9.0, spec.TotalDuration(), 1e-9)
	assert.Equal(t, models.DefaultOutputProfile(), spec.Output)

	require.Len(t, overlays, 2)
	assert.Equal(t, defaultFontSize, overlays[0].Style.FontSize)
	assert.Equal(t, models.TextAlignCenter, overlays[0].Style.Align)
	assert.Equal(t, models.TextAlignLeft, overlays[1].Style.Align)
	assert.True(t, overlays[1].Style.Shadow)
}

func TestParse_YAMLAndTOMLMatchJSON(t *testing.T) {
	yamlDoc := `
id: resort-teaser
clips:
  - order: 0
    duration: 3
    description: infinity pool with ocean view
  - order: 1
    duration: 4
    description: king bedroom
output:
  width: 1920
  height: 1080
`
	tomlDoc := `
id = "resort-teaser"

[[clips]]
order = 0
duration = 3.0
description = "infinity pool with ocean view"

[[clips]]
order = 1
duration = 4.0
description = "king bedroom"

[output]
width = 1920
height = 1080
`
	fromYAML, _, err := Parse([]byte(yamlDoc), FormatYAML)
	require.NoError(t, err)
	fromTOML, _, err := Parse([]byte(tomlDoc), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, fromYAML.Slots, fromTOML.Slots)
	assert.Equal(t, 1920, fromTOML.Output.Width)
	assert.Equal(t, 30, fromTOML.Output.FPS, "unset fields keep the default profile")
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no clips", `{"id":"x","clips":[]}`},
		{"zero duration", `{"clips":[{"order":0,"duration":0}]}`},
		{"negative duration", `{"clips":[{"order":0,"duration":-1.5}]}`},
		{"duplicate order", `{"clips":[{"order":0,"duration":1},{"order":0,"duration":1}]}`},
		{"gap in order", `{"clips":[{"order":0,"duration":1},{"order":2,"duration":1}]}`},
		{"overlay ends before start", `{"clips":[{"order":0,"duration":1}],"texts":[{"content":"a","start":2,"end":1}]}`},
		{"overlay off screen", `{"clips":[{"order":0,"duration":1}],"texts":[{"content":"a","start":0,"end":1,"position":{"x":1.5,"y":0}}]}`},
		{"bad alignment", `{"clips":[{"order":0,"duration":1}],"texts":[{"content":"a","start":0,"end":1,"style":{"align":"justify"}}]}`},
		{"not json", `clips: nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.doc), FormatJSON)
			require.Error(t, err)

			var malformed *models.MalformedTemplateError
			assert.ErrorAs(t, err, &malformed)
			assert.True(t, models.IsPermanent(err))
		})
	}
}

func TestParseFile_DefaultsIDFromFileName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lobby-loop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clips:\n  - order: 0\n    duration: 5\n    description: lobby\n"), 0644))

	stored, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "lobby-loop", stored.ID)
	assert.Equal(t, "lobby-loop", stored.Name)
	assert.Equal(t, path, stored.Source)

	_, err = ParseFile(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(&models.TemplateSpec{ID: "empty"}))
	assert.Error(t, Validate(&models.TemplateSpec{Slots: []models.ClipSlot{{Order: 1, TargetDuration: 2}}}))
	assert.NoError(t, Validate(&models.TemplateSpec{Slots: []models.ClipSlot{{Order: 0, TargetDuration: 2}}}))
}
