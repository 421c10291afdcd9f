package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

type Layout string

const (
	LayoutSingle Layout = "single"
	LayoutSplit  Layout = "split"
	LayoutArrow  Layout = "arrow"
)

const (
	DefaultImageToken = "<image>"
	DefaultClassToken = "[CLS]"
	MaxPrecision      = 15
)

type Config struct {
	// Image block. Either GridRows/GridCols or ImageTokens (or both, agreeing).
	GridRows    int
	GridCols    int
	ImageTokens int
	ImageToken  string

	RolePrefix   string
	ClassToken   string
	LeadingText  []string
	TrailingText []string

	Heads     int
	SeedBase  int64
	Precision int

	ImageURL string
	Output   string
	Layout   Layout

	FlightAddr    string
	FlightTimeout time.Duration

	MetricsFile string
	Progress    bool
	Verify      bool // read the written files back and re-check them

	LogLevel  string
	LogFormat string
}

func (c *Config) Validate() error {
	if c.GridRows < 0 || c.GridCols < 0 {
		return invalid("invalid grid: %dx%d (must be non-negative)", c.GridRows, c.GridCols)
	}
	if (c.GridRows == 0) != (c.GridCols == 0) {
		return invalid("invalid grid: %dx%d (rows and cols must both be set)", c.GridRows, c.GridCols)
	}
	if c.ImageTokens < 0 {
		return invalid("invalid image_tokens: %d (must be non-negative)", c.ImageTokens)
	}
	if c.HasGrid() && c.ImageTokens > 0 && c.ImageTokens != c.GridRows*c.GridCols {
		return invalid("image_tokens mismatch: %d != rows(%d) * cols(%d)", c.ImageTokens, c.GridRows, c.GridCols)
	}
	if c.NumImageTokens() <= 0 {
		return invalid("invalid image token count: %d (must be positive)", c.NumImageTokens())
	}
	if c.ImageToken == "" {
		return invalid("image_token must not be empty")
	}
	if c.ClassToken == c.ImageToken || c.RolePrefix == c.ImageToken {
		return invalid("special tokens must differ from image token %q", c.ImageToken)
	}
	if c.Heads <= 0 {
		return invalid("invalid heads: %d (must be positive)", c.Heads)
	}
	if c.Precision < 0 || c.Precision > MaxPrecision {
		return invalid("invalid precision: %d (must be in [0, %d])", c.Precision, MaxPrecision)
	}
	if c.Output == "" {
		return invalid("output path must not be empty")
	}
	switch c.Layout {
	case LayoutSingle, LayoutSplit, LayoutArrow:
	default:
		return invalid("invalid layout: %q (want single, split or arrow)", c.Layout)
	}
	if c.FlightAddr != "" && c.FlightTimeout <= 0 {
		return invalid("invalid flight_timeout: %v (must be positive)", c.FlightTimeout)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) HasGrid() bool {
	return c.GridRows > 0 && c.GridCols > 0
}

// NumImageTokens is rows*cols when a grid is set, else ImageTokens.
func (c *Config) NumImageTokens() int {
	if c.HasGrid() {
		return c.GridRows * c.GridCols
	}
	return c.ImageTokens
}

func (c *Config) NumTokens() int {
	n := len(c.LeadingText) + len(c.TrailingText) + c.NumImageTokens()
	if c.RolePrefix != "" {
		n++
	}
	if c.ClassToken != "" {
		n++
	}
	return n
}

// Default is the 12x12 grid fixture with a role prefix and class token.
func Default() Config {
	cfg, _ := Preset("cls")
	return cfg
}

var presets = map[string]func() Config{
	// 2x3 image followed by a short question, no special tokens.
	"caption": func() Config {
		return Config{
			GridRows:      2,
			GridCols:      3,
			ImageToken:    DefaultImageToken,
			TrailingText:  []string{" What", " is", " in", " the", " image", " ?"},
			Heads:         6,
			Precision:     3,
			ImageURL:      "https://upload.wikimedia.org/wikipedia/commons/thumb/7/7a/Huskiesatrest.jpg/2560px-Huskiesatrest.jpg",
			Output:        "img_mock_data.json",
			Layout:        LayoutSingle,
			FlightTimeout: 30 * time.Second,
			LogLevel:      "info",
			LogFormat:     "console",
		}
	},
	"cls": func() Config {
		return Config{
			GridRows:      12,
			GridCols:      12,
			ImageToken:    DefaultImageToken,
			RolePrefix:    "user:",
			ClassToken:    DefaultClassToken,
			TrailingText:  []string{" Describe", " the", " image"},
			Heads:         6,
			Precision:     3,
			ImageURL:      "https://github.com/zazamrykh/PicFinder/blob/main/images/doge.jpg?raw=true",
			Output:        "img_mock_data.json",
			Layout:        LayoutSingle,
			FlightTimeout: 30 * time.Second,
			LogLevel:      "info",
			LogFormat:     "console",
		}
	},
}

// Preset returns a fresh copy of a named fixture configuration.
func Preset(name string) (Config, error) {
	mk, ok := presets[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return mk(), nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
