// Package style provides the color values components pass as attributes.
//
// A Color is written as a hex string, an RGB triple or a CSS-style name and
// is resolved to a canonical RGB value when it is constructed. Colors
// marshal to "#rrggbb" in JSON and YAML, so renderers and theme documents
// see one form.
package style

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// ErrInvalidColor is returned for color text that is neither hex nor a
// known name.
var ErrInvalidColor = errors.New("style: invalid color")

// Form records how a Color was written.
type Form uint8

const (
	FormNone Form = iota
	FormHex
	FormRGB
	FormNamed
)

// String returns the string representation of the Form.
func (f Form) String() string {
	switch f {
	case FormHex:
		return "hex"
	case FormRGB:
		return "rgb"
	case FormNamed:
		return "named"
	default:
		return "none"
	}
}

// Color is a resolved color. The zero Color is "no color".
type Color struct {
	form Form
	name string
	c    colorful.Color
}

// Hex parses "#rgb" or "#rrggbb". The leading '#' is optional.
func Hex(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) == 4 {
		s = "#" + strings.Repeat(s[1:2], 2) + strings.Repeat(s[2:3], 2) + strings.Repeat(s[3:4], 2)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color{form: FormHex, c: c}, nil
}

// MustHex is like Hex but panics on malformed input.
func MustHex(s string) Color {
	c, err := Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// RGB returns the color with the given 8-bit channels.
func RGB(r, g, b uint8) Color {
	return Color{form: FormRGB, c: colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}}
}

// Named returns a color from the fixed name table.
func Named(name string) (Color, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	hex, ok := names[key]
	if !ok {
		return Color{}, fmt.Errorf("%w: unknown name %q", ErrInvalidColor, name)
	}
	c, _ := colorful.Hex(hex)
	return Color{form: FormNamed, name: key, c: c}, nil
}

// Parse accepts a hex string or a color name.
func Parse(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Color{}, nil
	}
	if strings.HasPrefix(s, "#") {
		return Hex(s)
	}
	if c, err := Named(s); err == nil {
		return c, nil
	}
	return Hex(s)
}

var names = map[string]string{
	"black":   "#000000",
	"white":   "#ffffff",
	"red":     "#ff0000",
	"green":   "#008000",
	"lime":    "#00ff00",
	"blue":    "#0000ff",
	"yellow":  "#ffff00",
	"cyan":    "#00ffff",
	"magenta": "#ff00ff",
	"gray":    "#808080",
	"grey":    "#808080",
	"silver":  "#c0c0c0",
	"maroon":  "#800000",
	"olive":   "#808000",
	"navy":    "#000080",
	"purple":  "#800080",
	"teal":    "#008080",
	"orange":  "#ffa500",
}

// Form reports how c was written.
func (c Color) Form() Form { return c.form }

// IsZero reports whether c is "no color".
func (c Color) IsZero() bool { return c.form == FormNone }

// RGB255 returns the 8-bit channels.
func (c Color) RGB255() (r, g, b uint8) {
	return c.c.Clamped().RGB255()
}

// Hex returns "#rrggbb", or "" for the zero Color.
func (c Color) Hex() string {
	if c.IsZero() {
		return ""
	}
	return c.c.Clamped().Hex()
}

// String returns the color's name if it has one, else its hex form.
func (c Color) String() string {
	if c.form == FormNamed {
		return c.name
	}
	return c.Hex()
}

// Equal reports whether c and o resolve to the same 8-bit color.
func (c Color) Equal(o Color) bool {
	if c.IsZero() || o.IsZero() {
		return c.IsZero() == o.IsZero()
	}
	return c.Hex() == o.Hex()
}

// Brighter moves c toward white by t in [0, 1]. Brighter(1) is white.
func (c Color) Brighter(t float64) Color {
	return c.blend(colorful.Color{R: 1, G: 1, B: 1}, t)
}

// Darker moves c toward black by t in [0, 1]. Darker(1) is black.
func (c Color) Darker(t float64) Color {
	return c.blend(colorful.Color{}, t)
}

func (c Color) blend(to colorful.Color, t float64) Color {
	if c.IsZero() {
		return c
	}
	t = min(max(t, 0), 1)
	return Color{form: FormRGB, c: c.c.BlendRgb(to, t).Clamped()}
}

// Contrast returns black or white, whichever reads better on c.
func (c Color) Contrast() Color {
	_, _, l := c.c.Hsl()
	if l > 0.55 {
		return RGB(0, 0, 0)
	}
	return RGB(255, 255, 255)
}

// MarshalJSON encodes c as its hex string, or null for the zero Color.
func (c Color) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(c.Hex())
}

// UnmarshalJSON accepts a hex string, a name or null.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidColor, data)
	}
	if s == nil {
		*c = Color{}
		return nil
	}
	v, err := Parse(*s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MarshalYAML encodes c as its string form.
func (c Color) MarshalYAML() (any, error) {
	return c.String(), nil
}

// UnmarshalYAML accepts a hex string or a name.
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: expected a scalar", ErrInvalidColor, value.Line)
	}
	v, err := Parse(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*c = v
	return nil
}
