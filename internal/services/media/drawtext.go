// -----------------------------------------------------------------------
// Drawtext - escaping and filter construction for timed text overlays
// -----------------------------------------------------------------------

package media

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

// A drawtext value passes through three parsers, innermost first:
// drawtext's own text expansion, the filter option parser, then the filtergraph parser.
// Each level strips one backslash, so the text is escaped once per level.
const (
	expansionSpecials   = `\%`
	optionSpecials      = `\':`
	filtergraphSpecials = `\'[],;`
)

// EscapeDrawText escapes content so no character can end the text value or the filter
func EscapeDrawText(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return escapeValue(backslashEscape(s, expansionSpecials))
}

// escapeValue prepares any option value (text, expressions) for the option and graph parsers
func escapeValue(s string) string {
	return backslashEscape(backslashEscape(s, optionSpecials), filtergraphSpecials)
}

func backslashEscape(s, specials string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DrawTextFilter chains one drawtext filter per item, in render order
func DrawTextFilter(items []interfaces.DrawTextItem, fontFile string) string {
	filters := make([]string, 0, len(items))
	for _, item := range items {
		filters = append(filters, drawText(item, fontFile))
	}
	return strings.Join(filters, ",")
}

func drawText(item interfaces.DrawTextItem, fontFile string) string {
	style := item.Style
	fontSize := style.FontSize
	if fontSize <= 0 {
		fontSize = 48
	}
	color := style.Color
	if color == "" {
		color = "white"
	}

	opts := []string{"text=" + EscapeDrawText(item.Text)}
	if fontFile != "" {
		opts = append(opts, "fontfile="+escapeValue(fontFile))
	}
	opts = append(opts,
		"fontsize="+strconv.Itoa(fontSize),
		"fontcolor="+escapeValue(color),
		"x="+escapeValue(xExpr(item.X, item.Align)),
		"y="+escapeValue(fmt.Sprintf("max(0,min(h-text_h,%d-text_h/2))", item.Y)),
		"enable="+escapeValue(fmt.Sprintf("between(t,%s,%s)", seconds(item.StartTime), seconds(item.EndTime))),
	)
	if style.Shadow {
		opts = append(opts, "shadowx=3", "shadowy=3", "shadowcolor=black@0.6")
	}
	if style.Outline {
		opts = append(opts, "borderw=3", "bordercolor=black")
	}
	if style.Background {
		opts = append(opts, "box=1", "boxcolor=black@0.5", "boxborderw=16")
	}

	return "drawtext=" + strings.Join(opts, ":")
}

// xExpr anchors the text at x by alignment and keeps it inside the frame
func xExpr(x int, align models.TextAlign) string {
	var anchor string
	switch align {
	case models.TextAlignLeft:
		anchor = strconv.Itoa(x)
	case models.TextAlignRight:
		anchor = fmt.Sprintf("%d-text_w", x)
	default:
		anchor = fmt.Sprintf("%d-text_w/2", x)
	}
	return fmt.Sprintf("max(0,min(w-text_w,%s))", anchor)
}
