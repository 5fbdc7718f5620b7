// Package style resolves caption style presets. Presets are stored partially;
// any field left out falls back to the built-in default when resolved.
package style

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultFont           = "Poppins ExtraBold"
	DefaultFontSize       = 130
	DefaultPrimaryColor   = "&H0000FFFF"
	DefaultOutlineWidth   = 6
	DefaultAlignment      = 2 // numpad layout, bottom center
	DefaultMarginVertical = 350
	DefaultGroupSize      = 2
)

// ErrInvalidPreset is returned when a preset carries an out-of-range field.
var ErrInvalidPreset = errors.New("invalid preset")

var (
	assColorPattern = regexp.MustCompile(`^&[Hh][0-9A-Fa-f]{8}$`)
	hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// Style is a fully resolved caption style. It is a value type: a job keeps
// its own copy, so later preset edits never reach an in-flight job.
type Style struct {
	Font           string `json:"font"`
	FontSize       int    `json:"size"`
	PrimaryColor   string `json:"primary_color"`
	OutlineWidth   int    `json:"outline"`
	Alignment      int    `json:"alignment"`
	MarginVertical int    `json:"margin_v"`
	GroupSize      int    `json:"max_words"`
}

// Preset is the stored form of a style. Nil fields mean "use the default".
type Preset struct {
	Font           *string `json:"font,omitempty"`
	FontSize       *int    `json:"size,omitempty"`
	PrimaryColor   *string `json:"primary_color,omitempty"`
	OutlineWidth   *int    `json:"outline,omitempty"`
	Alignment      *int    `json:"alignment,omitempty"`
	MarginVertical *int    `json:"margin_v,omitempty"`
	GroupSize      *int    `json:"max_words,omitempty"`
}

// Defaults returns the all-defaults style.
func Defaults() Style {
	return Style{
		Font:           DefaultFont,
		FontSize:       DefaultFontSize,
		PrimaryColor:   DefaultPrimaryColor,
		OutlineWidth:   DefaultOutlineWidth,
		Alignment:      DefaultAlignment,
		MarginVertical: DefaultMarginVertical,
		GroupSize:      DefaultGroupSize,
	}
}

// Apply overlays the fields set in p onto base.
func (p Preset) Apply(base Style) Style {
	if p.Font != nil && strings.TrimSpace(*p.Font) != "" {
		base.Font = strings.TrimSpace(*p.Font)
	}
	if p.FontSize != nil {
		base.FontSize = *p.FontSize
	}
	if p.PrimaryColor != nil && strings.TrimSpace(*p.PrimaryColor) != "" {
		base.PrimaryColor = strings.TrimSpace(*p.PrimaryColor)
	}
	if p.OutlineWidth != nil {
		base.OutlineWidth = *p.OutlineWidth
	}
	if p.Alignment != nil {
		base.Alignment = *p.Alignment
	}
	if p.MarginVertical != nil {
		base.MarginVertical = *p.MarginVertical
	}
	if p.GroupSize != nil {
		base.GroupSize = *p.GroupSize
	}
	return base
}

// Normalize validates the preset and rewrites #RRGGBB colors into the
// &HAABBGGRR form the subtitle renderer expects.
func (p Preset) Normalize() (Preset, error) {
	if p.FontSize != nil && *p.FontSize <= 0 {
		return p, fmt.Errorf("%w: size must be positive", ErrInvalidPreset)
	}
	if p.OutlineWidth != nil && *p.OutlineWidth < 0 {
		return p, fmt.Errorf("%w: outline must not be negative", ErrInvalidPreset)
	}
	if p.Alignment != nil && (*p.Alignment < 1 || *p.Alignment > 9) {
		return p, fmt.Errorf("%w: alignment must be between 1 and 9", ErrInvalidPreset)
	}
	if p.MarginVertical != nil && *p.MarginVertical < 0 {
		return p, fmt.Errorf("%w: margin_v must not be negative", ErrInvalidPreset)
	}
	if p.GroupSize != nil && *p.GroupSize < 1 {
		return p, fmt.Errorf("%w: max_words must be at least 1", ErrInvalidPreset)
	}
	if p.Font != nil && strings.ContainsAny(*p.Font, ",\r\n") {
		return p, fmt.Errorf("%w: font name must not contain commas or newlines", ErrInvalidPreset)
	}
	if p.PrimaryColor != nil && strings.TrimSpace(*p.PrimaryColor) == "" {
		p.PrimaryColor = nil
	}
	if p.PrimaryColor != nil {
		color, err := NormalizeColor(*p.PrimaryColor)
		if err != nil {
			return p, err
		}
		p.PrimaryColor = &color
	}
	return p, nil
}

// NormalizeColor accepts &HAABBGGRR or #RRGGBB and returns &HAABBGGRR with
// upper-case hex digits.
func NormalizeColor(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case assColorPattern.MatchString(value):
		return "&H" + strings.ToUpper(value[2:]), nil
	case hexColorPattern.MatchString(value):
		rgb := strings.ToUpper(value[1:])
		return "&H00" + rgb[4:6] + rgb[2:4] + rgb[0:2], nil
	default:
		return "", fmt.Errorf("%w: primary_color %q must be &HAABBGGRR or #RRGGBB", ErrInvalidPreset, value)
	}
}
