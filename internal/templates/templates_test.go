package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin_ParseAndValidate(t *testing.T) {
	names, err := ListBuiltin()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"city_stay.yaml", "resort_teaser.toml"}, names)

	builtins, err := Builtin()
	require.NoError(t, err)
	require.Len(t, builtins, 2)

	for _, tmpl := range builtins {
		assert.NoError(t, Validate(&tmpl.Spec), tmpl.ID)
		assert.Contains(t, tmpl.Source, "builtin:")
		assert.NotEmpty(t, tmpl.Overlays, tmpl.ID)
	}

	city := builtins[0]
	assert.Equal(t, "city_stay", city.ID)
	assert.Len(t, city.Spec.Slots, 3)
	assert.Equal(t, 1080, city.Spec.Output.Height)

	resort := builtins[1]
	assert.Equal(t, "resort_teaser", resort.ID)
	require.Len(t, resort.Spec.Slots, 4)
	assert.Equal(t, 15.0, resort.Spec.TotalDuration())
	assert.Equal(t, 1920, resort.Spec.Output.Height)
}
