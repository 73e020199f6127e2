package conf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// FileConfig holds defaults read from config.json. Unset fields leave the
// built-in defaults alone; command-line flags always win.
type FileConfig struct {
	AudioPlayer    string   `json:"audio_player,omitempty"`
	StartupDelayMS *int     `json:"startup_delay_ms,omitempty"`
	Verbose        *bool    `json:"verbose,omitempty"`
	Color          *bool    `json:"color,omitempty"`
	Blocks         *bool    `json:"blocks,omitempty"`
	FPS            *float64 `json:"fps,omitempty"`
}

// LoadFileConfig reads path. A missing file is not an error.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	if path == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fc, nil
		}
		return fc, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return fc, nil
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// ApplyFile fills options not given on the command line from fc.
func (opts *AppOptions) ApplyFile(fc FileConfig) {
	if !opts.IsSet("audio-player") && strings.TrimSpace(fc.AudioPlayer) != "" {
		opts.AudioPlayer = strings.TrimSpace(fc.AudioPlayer)
	}
	if !opts.IsSet("delay") && fc.StartupDelayMS != nil && *fc.StartupDelayMS >= 0 {
		opts.StartupDelay = time.Duration(*fc.StartupDelayMS) * time.Millisecond
	}
	if !opts.IsSet("verbose") && fc.Verbose != nil {
		opts.Verbose = *fc.Verbose
	}
	if !opts.IsSet("color") && fc.Color != nil {
		opts.Color = *fc.Color
	}
	if !opts.IsSet("blocks") && fc.Blocks != nil {
		opts.Blocks = *fc.Blocks
	}
	if !opts.IsSet("fps") && fc.FPS != nil && *fc.FPS > 0 {
		opts.FPS = *fc.FPS
	}
}
