package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var defaultConfig = Config{
	BarHeight:  32,
	IconSize:   24,
	Background: "#00000000",
	Hidden:     false,
}

type Config struct {
	// BarHeight is the height of the host bar window in pixels.
	BarHeight int `json:"bar_height"`
	// IconSize is the fixed width and height of embedded icons. Icons are
	// never resized after embedding, only repositioned.
	IconSize int `json:"icon_size"`
	// Background is the compositing fallback/overlay color, #RRGGBB or
	// #AARRGGBB.
	Background string `json:"background"`
	// Hidden starts icons hidden regardless of their XEmbed flags.
	Hidden bool `json:"hidden"`
}

// BackgroundColor parses the Background field.
func (c Config) BackgroundColor() (color.NRGBA, error) {
	return ParseColor(c.Background)
}

func ParseColor(s string) (color.NRGBA, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("color %q: missing # prefix", s)
	}

	switch len(hex) {
	case 6:
		// Alpha-less colors are fully opaque.
		hex = "ff" + hex
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("color %q: expected #RRGGBB or #AARRGGBB", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}

	return color.NRGBA{
		A: uint8(v >> 24),
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}
