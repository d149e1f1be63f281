package templates

import (
	"github.com/ternarybob/stayreel/internal/models"
)

// File is the wire representation of a template, shared by the JSON, YAML and TOML formats.
type File struct {
	ID     string      `json:"id" yaml:"id" toml:"id"`
	Name   string      `json:"name" yaml:"name" toml:"name"`
	Output *OutputFile `json:"output,omitempty" yaml:"output,omitempty" toml:"output,omitempty"`
	Clips  []ClipFile  `json:"clips" yaml:"clips" toml:"clips" validate:"dive"`
	Texts  []TextFile  `json:"texts,omitempty" yaml:"texts,omitempty" toml:"texts,omitempty" validate:"dive"`
}

// OutputFile overrides the default output profile
type OutputFile struct {
	Width  int `json:"width" yaml:"width" toml:"width" validate:"gte=0"`
	Height int `json:"height" yaml:"height" toml:"height" validate:"gte=0"`
	FPS    int `json:"fps" yaml:"fps" toml:"fps" validate:"gte=0"`
}

// ClipFile is one ordered clip descriptor
type ClipFile struct {
	Order       int     `json:"order" yaml:"order" toml:"order" validate:"gte=0"`
	Duration    float64 `json:"duration" yaml:"duration" toml:"duration" validate:"gt=0"`
	Description string  `json:"description" yaml:"description" toml:"description"`
}

// TextFile is one timed text descriptor
type TextFile struct {
	Content  string       `json:"content" yaml:"content" toml:"content" validate:"required"`
	Start    float64      `json:"start" yaml:"start" toml:"start" validate:"gte=0"`
	End      float64      `json:"end" yaml:"end" toml:"end" validate:"gtfield=Start"`
	Position PositionFile `json:"position" yaml:"position" toml:"position"`
	Style    StyleFile    `json:"style" yaml:"style" toml:"style"`
}

// PositionFile is a relative position, both axes in [0,1]
type PositionFile struct {
	X float64 `json:"x" yaml:"x" toml:"x" validate:"gte=0,lte=1"`
	Y float64 `json:"y" yaml:"y" toml:"y" validate:"gte=0,lte=1"`
}

// StyleFile holds optional overlay styling. Zero values take defaults.
type StyleFile struct {
	FontSize   int    `json:"font_size" yaml:"font_size" toml:"font_size" validate:"gte=0"`
	Color      string `json:"color" yaml:"color" toml:"color"`
	Shadow     bool   `json:"shadow" yaml:"shadow" toml:"shadow"`
	Outline    bool   `json:"outline" yaml:"outline" toml:"outline"`
	Background bool   `json:"background" yaml:"background" toml:"background"`
	Align      string `json:"align" yaml:"align" toml:"align" validate:"omitempty,oneof=left center right"`
}

const (
	defaultFontSize = 56
	defaultColor    = "white"
)

func (o *OutputFile) toProfile() models.OutputProfile {
	profile := models.DefaultOutputProfile()
	if o == nil {
		return profile
	}
	if o.Width > 0 {
		profile.Width = o.Width
	}
	if o.Height > 0 {
		profile.Height = o.Height
	}
	if o.FPS > 0 {
		profile.FPS = o.FPS
	}
	return profile
}

func (t TextFile) toOverlay() models.TextOverlay {
	style := models.OverlayStyle{
		FontSize:   t.Style.FontSize,
		Color:      t.Style.Color,
		Shadow:     t.Style.Shadow,
		Outline:    t.Style.Outline,
		Background: t.Style.Background,
		Align:      models.TextAlign(t.Style.Align),
	}
	if style.FontSize == 0 {
		style.FontSize = defaultFontSize
	}
	if style.Color == "" {
		style.Color = defaultColor
	}
	if style.Align == "" {
		style.Align = models.TextAlignCenter
	}

	return models.TextOverlay{
		Content:   t.Content,
		StartTime: t.Start,
		EndTime:   t.End,
		Position:  models.OverlayPosition{X: t.Position.X, Y: t.Position.Y},
		Style:     style,
	}
}
