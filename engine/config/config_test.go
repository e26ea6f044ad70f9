package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, FramesInFlight, cfg.FramesInFlight)
	assert.False(t, cfg.AutoStop())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aquarium.toml")
	content := `
backend = "software"
msaa = true
instanced_draws = true
num_fish = 1000
window_width = 800
window_height = 600
test_time_seconds = 10
validation = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSoftware, cfg.Backend)
	assert.True(t, cfg.MSAA)
	assert.True(t, cfg.InstancedDraws)
	assert.Equal(t, 1000, cfg.NumFish)
	assert.Equal(t, 800, cfg.WindowWidth)
	assert.True(t, cfg.AutoStop())
	assert.True(t, cfg.Validation)
	// untouched keys keep their defaults
	assert.Equal(t, "assets", cfg.AssetPath)
	require.NoError(t, cfg.Validate())
}

func TestLoad_RoundTripsMarshal(t *testing.T) {
	cfg := Default()
	cfg.NumFish = 42
	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "roundtrip.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative fish", func(c *Config) { c.NumFish = -1 }},
		{"unknown backend", func(c *Config) { c.Backend = "metal" }},
		{"unknown gpu", func(c *Config) { c.GPU = "quantum" }},
		{"bad window", func(c *Config) { c.WindowWidth = 0 }},
		{"frames in flight", func(c *Config) { c.FramesInFlight = 2 }},
		{"negative test time", func(c *Config) { c.TestTimeSeconds = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidConfig)
		})
	}
}

func TestSetGPU(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.SetGPU(true, true), core.ErrInvalidConfig)

	require.NoError(t, cfg.SetGPU(false, true))
	assert.Equal(t, GPUIntegrated, cfg.GPU)

	require.NoError(t, cfg.SetGPU(true, false))
	assert.Equal(t, GPUDiscrete, cfg.GPU)
}
