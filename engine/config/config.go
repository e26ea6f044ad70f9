package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/aquarium/engine/core"
)

const (
	BackendVulkan   = "vulkan"
	BackendSoftware = "software"

	GPUDefault    = "default"
	GPUDiscrete   = "discrete"
	GPUIntegrated = "integrated"

	// The renderer is triple buffered. The value is exposed for validation only.
	FramesInFlight = 3
)

// Config holds every toggle read once when the renderer initializes.
type Config struct {
	Name       string `toml:"name"`
	Backend    string `toml:"backend"`
	AssetPath  string `toml:"asset_path"`
	LogLevel   string `toml:"log_level"`
	GPU        string `toml:"gpu"`
	MSAA       bool   `toml:"msaa"`
	Fullscreen bool   `toml:"fullscreen"`
	// Draw every fish species with a single hardware instanced draw.
	InstancedDraws bool `toml:"instanced_draws"`
	VSync          bool `toml:"vsync"`
	// Enable the Vulkan validation layers and report their messages.
	Validation bool `toml:"validation"`
	// Issue one draw per fish instead of one per species. Ignored with instanced draws.
	UpdateAndDrawForEachFish bool   `toml:"update_and_draw_for_each_fish"`
	NumFish                  int    `toml:"num_fish"`
	WindowWidth              int    `toml:"window_width"`
	WindowHeight             int    `toml:"window_height"`
	FramesInFlight           int    `toml:"frames_in_flight"`
	TestTimeSeconds          int    `toml:"test_time_seconds"`
	RecordFPSFrequency       int    `toml:"record_fps_frequency"`
	ShaderDir                string `toml:"shader_dir"`
}

func Default() *Config {
	return &Config{
		Name:           "Aquarium",
		Backend:        BackendVulkan,
		AssetPath:      "assets",
		LogLevel:       "info",
		GPU:            GPUDefault,
		VSync:          true,
		NumFish:        30000,
		WindowWidth:    1920,
		WindowHeight:   1080,
		FramesInFlight: FramesInFlight,
		ShaderDir:      "shaders",
	}
}

// Load reads a TOML file on top of the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		err = fmt.Errorf("failed to parse config %s: %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes the configuration back to TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// SetGPU applies the mutually exclusive discrete/integrated command-line switches.
func (c *Config) SetGPU(discrete, integrated bool) error {
	if discrete && integrated {
		return fmt.Errorf("%w: discrete and integrated gpu are mutually exclusive", core.ErrInvalidConfig)
	}
	switch {
	case discrete:
		c.GPU = GPUDiscrete
	case integrated:
		c.GPU = GPUIntegrated
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	switch c.Backend {
	case BackendVulkan, BackendSoftware:
	default:
		problems = append(problems, fmt.Sprintf("unknown backend %q", c.Backend))
	}
	switch c.GPU {
	case GPUDefault, GPUDiscrete, GPUIntegrated:
	default:
		problems = append(problems, fmt.Sprintf("unknown gpu preference %q", c.GPU))
	}
	if c.NumFish < 0 {
		problems = append(problems, "num_fish must not be negative")
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		problems = append(problems, fmt.Sprintf("invalid window size %dx%d", c.WindowWidth, c.WindowHeight))
	}
	if c.FramesInFlight != FramesInFlight {
		problems = append(problems, fmt.Sprintf("frames_in_flight must be %d", FramesInFlight))
	}
	if c.TestTimeSeconds < 0 {
		problems = append(problems, "test_time_seconds must not be negative")
	}
	if c.RecordFPSFrequency < 0 {
		problems = append(problems, "record_fps_frequency must not be negative")
	}
	if len(problems) > 0 {
		err := fmt.Errorf("%w: %v", core.ErrInvalidConfig, problems)
		core.LogError("%s", err)
		return err
	}
	return nil
}

// AutoStop reports whether the run should stop by itself after TestTimeSeconds.
func (c *Config) AutoStop() bool {
	return c.TestTimeSeconds > 0
}
