package ui

// Labels are the user-visible control texts.
type Labels struct {
	ControlSetting string `json:"control_setting"`
	VideoStream    string `json:"video_stream"`
	ColorStream    string `json:"color_stream"`
	DepthStream    string `json:"depth_stream"`
	DnnObjDetect   string `json:"dnn_obj_detect"`
	StartDetect    string `json:"start_detect"`
}

// Config holds desktop UI configuration.
type Config struct {
	Width  float32 `json:"width"`
	Height float32 `json:"height"`

	// DepthRatio is the share of the screen the depth window takes.
	DepthRatio float32 `json:"depth_ratio"`

	Labels Labels `json:"labels"`
}

// DefaultLabels returns the English control texts.
func DefaultLabels() Labels {
	return Labels{
		ControlSetting: "Control / Setting",
		VideoStream:    "Video Stream",
		ColorStream:    "Color Stream",
		DepthStream:    "Depth Stream",
		DnnObjDetect:   "DNN Object Detection",
		StartDetect:    "Start Detecting",
	}
}

// DefaultConfig returns a 1280x720 control window.
func DefaultConfig() Config {
	return Config{
		Width:      1280,
		Height:     720,
		DepthRatio: 0.25,
		Labels:     DefaultLabels(),
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string
	if c.Width < 320 || c.Height < 240 {
		errs = append(errs, "window must be at least 320x240")
	}
	if c.DepthRatio <= 0 || c.DepthRatio > 1 {
		errs = append(errs, "depth_ratio must be in (0, 1]")
	}
	return errs
}

// withDefaults fills empty label texts.
func (l Labels) withDefaults() Labels {
	d := DefaultLabels()
	fill := func(s *string, def string) {
		if *s == "" {
			*s = def
		}
	}
	fill(&l.ControlSetting, d.ControlSetting)
	fill(&l.VideoStream, d.VideoStream)
	fill(&l.ColorStream, d.ColorStream)
	fill(&l.DepthStream, d.DepthStream)
	fill(&l.DnnObjDetect, d.DnnObjDetect)
	fill(&l.StartDetect, d.StartDetect)
	return l
}
