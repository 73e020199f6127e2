package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultStartupDelay gives an external audio player time to start before
// the first frame is paced.
const DefaultStartupDelay = 240 * time.Millisecond

// ErrNoVideo is returned when no video path was given.
var ErrNoVideo = errors.New("no video file given")

// Usage is printed when the command line cannot be used.
const Usage = `Usage: termplay <video_file> [options]
Options:
  --color            Enable color output
  --blocks           Use block glyphs (with --color)
  --fps N            Set playback FPS (default: source rate)
  --srt [file]       Subtitle file (default: <video>.srt when present)
  --audio            Play audio through VLC or mpv
  --audio-player P   Audio player binary
  --delay MS         Startup delay in milliseconds (default: 240)
  --record FILE      Record the session as asciicast (.cast or .cast.zst)
  --config FILE      Config file (default: <config dir>/termplay/config.json)
  -v, --verbose      Verbose logging
  --version          Print version

Examples:
  termplay video.mp4
  termplay video.mp4 --color
  termplay video.mp4 --color --fps 30
  termplay video.mp4 --color --audio --srt
  termplay video.mp4 --color --blocks --srt subs.srt --fps 30
`

// AppOptions aggregates all CLI flags and configuration options required by the application.
type AppOptions struct {
	Video        string
	Color        bool
	Blocks       bool
	FPS          float64
	SRTPath      string
	SRTRequested bool
	Audio        bool
	AudioPlayer  string
	StartupDelay time.Duration
	Record       string
	Verbose      bool
	ConfigPath   string
	ShowVersion  bool
	ShowHelp     bool

	// Warnings collects recoverable problems found while parsing.
	Warnings []string

	set map[string]bool
}

func (opts *AppOptions) warnf(format string, args ...any) {
	opts.Warnings = append(opts.Warnings, fmt.Sprintf(format, args...))
}

func (opts *AppOptions) mark(key string) {
	if opts.set == nil {
		opts.set = make(map[string]bool)
	}
	opts.set[key] = true
}

// IsSet reports whether the flag was given on the command line.
func (opts *AppOptions) IsSet(key string) bool { return opts.set[key] }

// ParseCLI parses command-line arguments (without the program name) into an
// AppOptions. Flags take one or two dashes and "-flag value" or "-flag=value";
// the first positional argument is the video. A missing video yields
// ErrNoVideo unless only --version or --help was asked for.
func ParseCLI(args []string) (*AppOptions, error) {
	opts := &AppOptions{StartupDelay: DefaultStartupDelay}

	rawArgs := compactArgs(args)
	flagTokens, consumed := collectDashPrefixedArgs(rawArgs)
	if err := applyFlagTokens(flagTokens, opts); err != nil {
		return nil, err
	}

	extra := remainingArgs(rawArgs, consumed)
	if len(extra) > 1 {
		return nil, fmt.Errorf("unexpected extra positional arguments: %v", extra[1:])
	}
	if len(extra) == 1 {
		opts.Video = extra[0]
	}
	if opts.Video == "" && !opts.ShowVersion && !opts.ShowHelp {
		return opts, ErrNoVideo
	}

	resolved, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("config path error: %w", err)
	}
	opts.ConfigPath = resolved
	if opts.Blocks && !opts.Color {
		opts.warnf("--blocks has no effect without --color")
	}
	return opts, nil
}

// resolveConfigPath normalizes the config file path, expanding "~" and
// converting it to an absolute path. When cfg is empty it defaults to
// config.json in the user config directory. A bare name without an extension
// is treated as a profile inside that directory ("name.json").
func resolveConfigPath(cfg string) (string, error) {
	raw := strings.TrimSpace(cfg)

	switch {
	case raw == "":
		if dir, err := DefaultConfigDir(); err == nil {
			raw = filepath.Join(dir, "config.json")
		} else {
			raw = "config.json"
		}
	case filepath.Base(raw) == raw && filepath.Ext(raw) == "":
		if dir, err := DefaultConfigDir(); err == nil {
			raw = filepath.Join(dir, raw+".json")
		} else {
			raw = raw + ".json"
		}
	}

	return resolvePathAllowingHome(raw)
}

// DefaultConfigDir is termplay's directory under the user config directory.
func DefaultConfigDir() (string, error) {
	d, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "termplay"), nil
}

// EnsureConfigDir creates the directory holding configPath.
func EnsureConfigDir(configPath string) (string, error) {
	dir := filepath.Dir(configPath)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func resolvePathAllowingHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		h, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(h, path[2:])
		}
	}
	return filepath.Abs(path)
}

func compactArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	out := make([]string, 0, len(args))
	for _, raw := range args {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// collectDashPrefixedArgs gathers flag tokens, joining a following value for
// flags that take one. Everything after "--" is positional.
func collectDashPrefixedArgs(args []string) ([]string, map[int]struct{}) {
	consumed := make(map[int]struct{})
	if len(args) == 0 {
		return nil, consumed
	}
	flags := make([]string, 0, len(args))
	sawPositional := false
	for i := 0; i < len(args); i++ {
		token := args[i]
		if token == "--" {
			consumed[i] = struct{}{}
			break
		}
		if !strings.HasPrefix(token, "-") || token == "-" {
			sawPositional = true
			continue
		}
		consumed[i] = struct{}{}
		keyToken := token
		if idx := strings.Index(token, "="); idx != -1 {
			keyToken = token[:idx]
		}
		key := normalizeFlagKey(keyToken)
		combined := token
		if !strings.Contains(token, "=") && i+1 < len(args) {
			next := args[i+1]
			if takesValue(key, next, sawPositional) {
				consumed[i+1] = struct{}{}
				combined = fmt.Sprintf("%s=%s", token, next)
				i++
			}
		}
		flags = append(flags, combined)
	}
	return flags, consumed
}

func remainingArgs(args []string, consumed map[int]struct{}) []string {
	if len(args) == 0 {
		return nil
	}
	extra := make([]string, 0, len(args))
	for idx, token := range args {
		if _, ok := consumed[idx]; ok {
			continue
		}
		trimmed := strings.TrimSpace(token)
		if trimmed == "" {
			continue
		}
		extra = append(extra, trimmed)
	}
	return extra
}

func applyFlagTokens(tokens []string, opts *AppOptions) error {
	for _, token := range tokens {
		key, value, hasValue := splitFlagToken(token)
		switch key {
		case "v", "verbose", "color", "blocks", "audio":
			boolVal := true
			if hasValue && value != "" {
				parsed, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("invalid value for -%s: %q", key, value)
				}
				boolVal = parsed
			}
			switch key {
			case "color":
				opts.Color = boolVal
			case "blocks":
				opts.Blocks = boolVal
			case "audio":
				opts.Audio = boolVal
			default:
				key = "verbose"
				opts.Verbose = boolVal
			}
		case "fps":
			if !hasValue || value == "" {
				opts.warnf("-fps needs a number, using the source frame rate")
				continue
			}
			fps, err := strconv.ParseFloat(value, 64)
			if err != nil || fps <= 0 || fps > 1000 {
				opts.warnf("invalid FPS value %q, using the source frame rate", value)
				opts.FPS = 0
				continue
			}
			opts.FPS = fps
		case "srt":
			opts.SRTRequested = true
			if hasValue {
				opts.SRTPath = value
			}
		case "delay":
			if !hasValue || value == "" {
				opts.warnf("-delay needs a number of milliseconds, using %v", DefaultStartupDelay)
				continue
			}
			ms, err := strconv.Atoi(value)
			if err != nil || ms < 0 {
				opts.warnf("invalid delay %q, using %v", value, DefaultStartupDelay)
				continue
			}
			opts.StartupDelay = time.Duration(ms) * time.Millisecond
		case "config", "record", "audio-player":
			if !hasValue || value == "" {
				return fmt.Errorf("-%s requires a value", key)
			}
			switch key {
			case "config":
				if opts.ConfigPath != "" && opts.ConfigPath != value {
					return fmt.Errorf("-config specified multiple times")
				}
				opts.ConfigPath = value
			case "record":
				opts.Record = value
			default:
				opts.AudioPlayer = value
			}
		case "version":
			opts.ShowVersion = true
		case "h", "help":
			key = "help"
			opts.ShowHelp = true
		default:
			return fmt.Errorf("unknown flag %q", token)
		}
		opts.mark(key)
	}
	return nil
}

func splitFlagToken(token string) (string, string, bool) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "=", 2)
	key := normalizeFlagKey(parts[0])
	if len(parts) == 1 {
		return key, "", false
	}
	return key, parts[1], true
}

func normalizeFlagKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimLeft(trimmed, "-")
	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	return strings.ToLower(trimmed)
}

// takesValue reports whether next is the value of flag key. Numeric flags take
// any number, negative ones included, and leave file names alone so that
// "--fps clip.mp4" keeps clip.mp4 as the video.
func takesValue(key, next string, sawPositional bool) bool {
	if next == "--" {
		return false
	}
	if flagNumericValue(key) {
		if _, err := strconv.ParseFloat(next, 64); err == nil {
			return true
		}
		return !strings.HasPrefix(next, "-") && filepath.Ext(next) == ""
	}
	if strings.HasPrefix(next, "-") {
		return false
	}
	if flagRequiresValue(key) {
		return true
	}
	return flagOptionalValue(key) && (sawPositional || strings.EqualFold(filepath.Ext(next), ".srt"))
}

func flagNumericValue(key string) bool {
	return key == "fps" || key == "delay"
}

func flagRequiresValue(key string) bool {
	switch key {
	case "config", "fps", "delay", "record", "audio-player":
		return true
	default:
		return false
	}
}

// flagOptionalValue lists flags whose value may be omitted. A following token
// is taken as the value only when it looks like one: a .srt file, or any
// word once the video path has already been seen.
func flagOptionalValue(key string) bool {
	return key == "srt"
}
