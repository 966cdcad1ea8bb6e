package style

// Attribute names for colors understood by renderers.
const (
	AttrColor      = "color"
	AttrBackground = "background"
	AttrBorder     = "border"
)

// Theme is a small palette shared by a session's components. Sessions carry
// it as an attachment.
type Theme struct {
	Name       string `json:"name" yaml:"name"`
	Background Color  `json:"background" yaml:"background"`
	Foreground Color  `json:"foreground" yaml:"foreground"`
	Accent     Color  `json:"accent" yaml:"accent"`
	Muted      Color  `json:"muted" yaml:"muted,omitempty"`
}

// DefaultTheme returns the built-in dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		Name:       "dark",
		Background: MustHex("#1e1e2e"),
		Foreground: MustHex("#cdd6f4"),
		Accent:     MustHex("#89b4fa"),
	}
}

// Fill returns t with missing colors derived from the ones present.
// Muted defaults to the foreground moved halfway to the background.
func (t Theme) Fill() Theme {
	def := DefaultTheme()
	if t.Background.IsZero() {
		t.Background = def.Background
	}
	if t.Foreground.IsZero() {
		t.Foreground = t.Background.Contrast()
	}
	if t.Accent.IsZero() {
		t.Accent = def.Accent
	}
	if t.Muted.IsZero() {
		fr, fg, fb := t.Foreground.RGB255()
		br, bg, bb := t.Background.RGB255()
		t.Muted = RGB(mid(fr, br), mid(fg, bg), mid(fb, bb))
	}
	return t
}

func mid(a, b uint8) uint8 {
	return uint8((int(a) + int(b)) / 2)
}
