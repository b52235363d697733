package styling

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
)

// ParseColor understands "r,g,b[,a]" (as written by QGIS, optionally followed by a colour space suffix),
// "#rrggbb" and "#aarrggbb"
func ParseColor(s string) (color.NRGBA, errorsx.Error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return color.NRGBA{}, errorsx.Errorf("empty colour")
	}

	if strings.HasPrefix(s, "#") {
		return parseHexColor(s)
	}

	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return color.NRGBA{}, errorsx.Errorf("couldn't understand colour %q", s)
	}

	components := []uint8{0, 0, 0, 255}
	for i := 0; i < 4 && i < len(parts); i++ {
		part := strings.TrimSpace(parts[i])
		if i == 3 && strings.Contains(part, ":") {
			// "rgb:..." colour space suffix
			break
		}
		value, err := strconv.Atoi(part)
		if err != nil {
			return color.NRGBA{}, errorsx.Wrap(err, "colour", s)
		}
		if value < 0 || value > 255 {
			return color.NRGBA{}, errorsx.Errorf("colour component out of range in %q", s)
		}
		components[i] = uint8(value)
	}

	return color.NRGBA{components[0], components[1], components[2], components[3]}, nil
}

func parseHexColor(s string) (color.NRGBA, errorsx.Error) {
	hex := strings.TrimPrefix(s, "#")

	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, errorsx.Wrap(err, "colour", s)
	}

	switch len(hex) {
	case 6:
		return color.NRGBA{uint8(value >> 16), uint8(value >> 8), uint8(value), 255}, nil
	case 8:
		return color.NRGBA{uint8(value >> 16), uint8(value >> 8), uint8(value), uint8(value >> 24)}, nil
	case 3:
		r, g, b := uint8(value>>8&0xf), uint8(value>>4&0xf), uint8(value&0xf)
		return color.NRGBA{r * 17, g * 17, b * 17, 255}, nil
	default:
		return color.NRGBA{}, errorsx.Errorf("couldn't understand colour %q", s)
	}
}

// FormatColor writes a colour the way QGIS stores it in QML documents
func FormatColor(c color.NRGBA) string {
	return fmt.Sprintf("%d,%d,%d,%d", c.R, c.G, c.B, c.A)
}

// FormatHexColor writes the colour without its alpha, as used in SLD documents
func FormatHexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
