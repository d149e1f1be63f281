// -----------------------------------------------------------------------
// Scoring - named sub-scores combined through a weighted sum
// -----------------------------------------------------------------------

package matcher

import (
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/models"
)

// Weights combines the sub-scores. They are normalised by their sum.
type Weights struct {
	Theme    float64
	Lexical  float64
	TieBreak float64
}

// DefaultWeights favours thematic overlap over raw token overlap
func DefaultWeights() Weights {
	return Weights{Theme: 0.6, Lexical: 0.35, TieBreak: 0.05}
}

// WeightsFromConfig reads [matcher], falling back to defaults when all weights are zero
func WeightsFromConfig(c common.MatcherConfig) Weights {
	w := Weights{Theme: c.ThemeWeight, Lexical: c.LexicalWeight, TieBreak: c.TieBreakWeight}
	if w.sum() <= 0 {
		return DefaultWeights()
	}
	return w
}

func (w Weights) sum() float64 {
	return math.Max(w.Theme, 0) + math.Max(w.Lexical, 0) + math.Max(w.TieBreak, 0)
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "by": {}, "for": {}, "from": {}, "in": {},
	"into": {}, "of": {}, "on": {}, "or": {}, "our": {}, "the": {}, "to": {}, "with": {},
	"shot": {}, "clip": {}, "footage": {}, "video": {}, "hotel": {}, "showing": {},
}

// text is a description prepared once for scoring
type text struct {
	tokens map[string]struct{}
	phrase string // normalised words joined by single spaces, padded
}

func prepare(s string) text {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop || len(w) < 2 {
			continue
		}
		tokens[stem(w)] = struct{}{}
	}
	return text{tokens: tokens, phrase: " " + strings.Join(words, " ") + " "}
}

// stem folds simple plurals so "pools" matches "pool"
func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

// LexicalOverlap is the Dice coefficient of the two descriptions' content tokens
func LexicalOverlap(slotDescription, clipDescription string) float64 {
	return lexical(prepare(slotDescription), prepare(clipDescription))
}

func lexical(a, b text) float64 {
	if len(a.tokens) == 0 || len(b.tokens) == 0 {
		return 0
	}
	shared := 0
	for t := range a.tokens {
		if _, ok := b.tokens[t]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a.tokens)+len(b.tokens))
}

// ThematicOverlap is the share of the slot's themes that the clip also shows
func ThematicOverlap(themes []Theme, slotDescription, clipDescription string) float64 {
	return thematic(themes, prepare(slotDescription), prepare(clipDescription))
}

func thematic(themes []Theme, slot, clip text) float64 {
	wanted := 0
	matched := 0
	for _, theme := range themes {
		if !hasTheme(theme, slot) {
			continue
		}
		wanted++
		if hasTheme(theme, clip) {
			matched++
		}
	}
	if wanted == 0 {
		return 0
	}
	return float64(matched) / float64(wanted)
}

func hasTheme(theme Theme, t text) bool {
	for _, kw := range theme.Keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(t.phrase, " "+kw+" ") {
				return true
			}
			continue
		}
		if _, ok := t.tokens[stem(kw)]; ok {
			return true
		}
	}
	return false
}

// TieBreak maps (clipID, slotDescription) to a stable value in [0,1)
func TieBreak(clipID, slotDescription string) float64 {
	h := xxhash.Sum64String(clipID + "|" + slotDescription)
	return float64(h>>11) / float64(uint64(1)<<53)
}

// Scorer computes Score(slot, clip) from the sub-scores
type Scorer struct {
	weights Weights
	themes  []Theme
}

// NewScorer creates a scorer. A nil theme table uses DefaultThemes.
func NewScorer(weights Weights, themes []Theme) *Scorer {
	if weights.sum() <= 0 {
		weights = DefaultWeights()
	}
	if themes == nil {
		themes = DefaultThemes
	}
	return &Scorer{weights: weights, themes: themes}
}

// Score returns the combined similarity of slot and clip in [0,1]
func (s *Scorer) Score(slot models.ClipSlot, clip *models.CandidateClip) float64 {
	return s.score(slot.Description, prepare(slot.Description), clip, prepare(clip.Description))
}

func (s *Scorer) score(slotDescription string, slot text, clip *models.CandidateClip, clipText text) float64 {
	w := s.weights
	total := math.Max(w.Theme, 0)*thematic(s.themes, slot, clipText) +
		math.Max(w.Lexical, 0)*lexical(slot, clipText) +
		math.Max(w.TieBreak, 0)*TieBreak(clip.ID, slotDescription)
	return clamp01(total / w.sum())
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
