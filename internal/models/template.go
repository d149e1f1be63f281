// -----------------------------------------------------------------------
// Template - ordered clip slots and timed text overlays
// -----------------------------------------------------------------------

package models

// ClipSlot is one ordered position in a template.
// Order is 0-based and fixed for the life of a job.
type ClipSlot struct {
	Order          int     `json:"order"`
	TargetDuration float64 `json:"target_duration"` // Seconds, always > 0
	Description    string  `json:"description"`     // Semantic description of the desired footage
}

// OutputProfile describes the deliverable the assembler renders to.
type OutputProfile struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

// DefaultOutputProfile is used when a template does not specify one (vertical 1080p).
func DefaultOutputProfile() OutputProfile {
	return OutputProfile{Width: 1080, Height: 1920, FPS: 30}
}

// TemplateSpec is a parsed, ordered list of clip slots.
type TemplateSpec struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Slots  []ClipSlot    `json:"slots"`
	Output OutputProfile `json:"output"`
}

// TotalDuration returns the sum of all slot target durations in seconds.
func (t *TemplateSpec) TotalDuration() float64 {
	var total float64
	for _, s := range t.Slots {
		total += s.TargetDuration
	}
	return total
}

// Slot returns the slot with the given order.
func (t *TemplateSpec) Slot(order int) (ClipSlot, bool) {
	for _, s := range t.Slots {
		if s.Order == order {
			return s, true
		}
	}
	return ClipSlot{}, false
}

// TextAlign controls horizontal anchoring of an overlay at its position.
type TextAlign string

const (
	TextAlignLeft   TextAlign = "left"
	TextAlignCenter TextAlign = "center"
	TextAlignRight  TextAlign = "right"
)

// OverlayPosition is a relative coordinate in [0,1] on both axes.
type OverlayPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// OverlayStyle holds the rendering options of a text overlay.
type OverlayStyle struct {
	FontSize   int       `json:"font_size"`
	Color      string    `json:"color"`
	Shadow     bool      `json:"shadow"`
	Outline    bool      `json:"outline"`
	Background bool      `json:"background"`
	Align      TextAlign `json:"align"`
}

// TextOverlay is a timed text drawn on top of the assembled timeline.
// Overlapping windows are legal; slice order is render order.
type TextOverlay struct {
	Content   string          `json:"content"`
	StartTime float64         `json:"start_time"`
	EndTime   float64         `json:"end_time"`
	Position  OverlayPosition `json:"position"`
	Style     OverlayStyle    `json:"style"`
}

// StoredTemplate is the persisted form of a template: the parsed spec plus its overlays.
type StoredTemplate struct {
	ID       string        `badgerhold:"key"`
	Name     string
	Spec     TemplateSpec
	Overlays []TextOverlay
	Source   string // File or caller the template was loaded from
}
