package plannerconfig_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/plannerconfig"
)

func TestDefaultMatchesSpecTable(t *testing.T) {
	cfg := plannerconfig.Default()
	assert.Equal(t, 40, cfg.MaxIterations)
	assert.Equal(t, 4, cfg.BeamWidth)
	assert.InDelta(t, 0.4, cfg.Validator.MinConfidence, 1e-9)
	assert.Equal(t, 1, cfg.Validator.Cooldown)
	assert.True(t, cfg.ScenarioPrediction.Enabled)
	assert.Equal(t, 300000, cfg.ScenarioPrediction.CacheDurationMs)
}

func TestBuilderOverridesDefaults(t *testing.T) {
	cfg := plannerconfig.New().WithBeamWidth(8).WithValidatorCooldown(3).Build()
	assert.Equal(t, 8, cfg.BeamWidth)
	assert.Equal(t, 3, cfg.Validator.Cooldown)
	assert.Equal(t, 40, cfg.MaxIterations) // untouched fields keep defaults
}

func TestFromYAMLLayersOverDefaultsThenBuilderOverridesYAML(t *testing.T) {
	doc := `
beamWidth: 6
validator:
  minConfidence: 0.7
`
	b, err := plannerconfig.FromYAML(strings.NewReader(doc))
	require.NoError(t, err)

	cfg := b.Build()
	assert.Equal(t, 6, cfg.BeamWidth)
	assert.InDelta(t, 0.7, cfg.Validator.MinConfidence, 1e-9)
	assert.Equal(t, 40, cfg.MaxIterations)

	overridden := b.WithBeamWidth(9).Build()
	assert.Equal(t, 9, overridden.BeamWidth)
}

func TestCacheDurationConvertsMillis(t *testing.T) {
	cfg := plannerconfig.Default()
	assert.Equal(t, int64(300000), cfg.CacheDuration().Milliseconds())
}
