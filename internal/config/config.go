// Package config holds the external tool locations and pipeline settings.
// Everything is injected explicitly; there is no global lookup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tools names the external executables the pipeline shells out to. Bare
// names are resolved through PATH; absolute paths pin a specific binary.
type Tools struct {
	MediaInfo     string `yaml:"mediainfo"`
	MP4Box        string `yaml:"mp4box"`
	MKVMerge      string `yaml:"mkvmerge"`
	MKVExtract    string `yaml:"mkvextract"`
	DoviTool      string `yaml:"dovi_tool"`
	HDR10PlusTool string `yaml:"hdr10plus_tool"`
}

// Config is the full pipeline configuration.
type Config struct {
	Tools Tools `yaml:"tools"`

	// DoviProfile is the dovi_tool conversion mode passed to extract-rpu.
	// See dovi_tool's conversion mode table; 3 is the hybrid default.
	DoviProfile int `yaml:"dovi_profile"`

	// WorkDirBase is the working directory name, created relative to the
	// process working directory. A numeric suffix is appended when the
	// name is taken.
	WorkDirBase string `yaml:"work_dir"`
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{
		Tools: Tools{
			MediaInfo:     "mediainfo",
			MP4Box:        "MP4Box",
			MKVMerge:      "mkvmerge",
			MKVExtract:    "mkvextract",
			DoviTool:      "dovi_tool",
			HDR10PlusTool: "hdr10plus_tool",
		},
		DoviProfile: 3,
		WorkDirBase: "dvhdr",
	}
}

// Load reads a YAML config file and overlays it onto the defaults, so a
// partial file only overrides the keys it names.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
