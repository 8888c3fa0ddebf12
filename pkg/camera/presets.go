package camera

// Preset names for common stream configurations
const (
	PresetDefault = "default"
	Preset720p    = "720p"
	PresetLegacy  = "legacy"
	PresetFast    = "fast"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		Preset720p:    HD720Config(),
		PresetLegacy:  LegacyConfig(),
		PresetFast:    FastConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, Preset720p, PresetLegacy, PresetFast}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 1280x720 color with 848x480 depth.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Color.Width, cfg.Color.Height = 1280, 720
	cfg.Depth.Width, cfg.Depth.Height = 848, 480
	return cfg
}

// LegacyConfig returns 640x480 for both streams.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Color.Width, cfg.Color.Height = 640, 480
	return cfg
}

// FastConfig trades resolution for 60 fps.
func FastConfig() Config {
	cfg := HD720Config()
	cfg.Color.Framerate = 60
	cfg.Depth.Framerate = 60
	return cfg
}
