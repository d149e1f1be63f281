// -----------------------------------------------------------------------
// Content Matcher - two-pass greedy slot assignment
// -----------------------------------------------------------------------

package matcher

import (
	"sort"

	"github.com/ternarybob/stayreel/internal/models"
)

// FallbackConfidenceFactor scales the confidence of reused clips
const FallbackConfidenceFactor = 0.5

// Matcher assigns candidate clips to template slots.
// It is a pure function of its inputs: identical input yields identical output.
type Matcher struct {
	scorer *Scorer
}

// NewMatcher creates a matcher around scorer. A nil scorer uses the defaults.
func NewMatcher(scorer *Scorer) *Matcher {
	if scorer == nil {
		scorer = NewScorer(DefaultWeights(), nil)
	}
	return &Matcher{scorer: scorer}
}

type pair struct {
	slot  int // index into spec.Slots
	clip  int // index into usable clips
	score float64
}

// Match returns exactly one assignment per slot, ordered by slot order.
//
// Pass 1 walks all (slot, clip) pairs by descending score and assigns a clip only if
// both the slot is open and the clip is unused. Pass 2 gives every open slot its
// single best clip regardless of reuse; those assignments are flagged Fallback.
// This is greedy, not an optimal bipartite matching.
func (m *Matcher) Match(spec *models.TemplateSpec, candidates []*models.CandidateClip) ([]models.SlotAssignment, error) {
	clips := usable(candidates)
	if len(clips) == 0 {
		propertyID := ""
		if len(candidates) > 0 && candidates[0] != nil {
			propertyID = candidates[0].PropertyID
		}
		return nil, &models.NoCandidatesError{PropertyID: propertyID}
	}

	slots := spec.Slots
	pairs := m.scorePairs(slots, clips)

	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if slots[a.slot].Order != slots[b.slot].Order {
			return slots[a.slot].Order < slots[b.slot].Order
		}
		return clips[a.clip].ID < clips[b.clip].ID
	})

	chosen := make([]*pair, len(slots))
	fallback := make([]bool, len(slots))
	clipUsed := make([]bool, len(clips))

	// Pass 1: unique clips
	remaining := len(slots)
	for i := range pairs {
		if remaining == 0 {
			break
		}
		p := &pairs[i]
		if chosen[p.slot] != nil || clipUsed[p.clip] {
			continue
		}
		chosen[p.slot] = p
		clipUsed[p.clip] = true
		remaining--
	}

	// Pass 2: best clip for each open slot, reuse allowed. pairs is sorted, so the
	// first pair seen for a slot is its best.
	if remaining > 0 {
		for i := range pairs {
			p := &pairs[i]
			if chosen[p.slot] != nil {
				continue
			}
			chosen[p.slot] = p
			fallback[p.slot] = true
		}
	}

	return buildAssignments(slots, clips, chosen, fallback), nil
}

func (m *Matcher) scorePairs(slots []models.ClipSlot, clips []*models.CandidateClip) []pair {
	clipTexts := make([]text, len(clips))
	for j, c := range clips {
		clipTexts[j] = prepare(c.Description)
	}

	pairs := make([]pair, 0, len(slots)*len(clips))
	for i, slot := range slots {
		slotText := prepare(slot.Description)
		for j, clip := range clips {
			pairs = append(pairs, pair{
				slot:  i,
				clip:  j,
				score: m.scorer.score(slot.Description, slotText, clip, clipTexts[j]),
			})
		}
	}
	return pairs
}

// buildAssignments computes extract ranges in slot order. A clip used more than once
// continues after its previous range while footage remains, otherwise restarts at 0.
// Footage shorter than the slot keeps ExtractEnd past AvailableDuration: the extractor
// loop-extends it.
func buildAssignments(slots []models.ClipSlot, clips []*models.CandidateClip, chosen []*pair, fallback []bool) []models.SlotAssignment {
	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return slots[order[a]].Order < slots[order[b]].Order })

	usedUntil := make(map[int]float64, len(clips))
	assignments := make([]models.SlotAssignment, 0, len(slots))

	for _, i := range order {
		slot := slots[i]
		p := chosen[i]
		clip := clips[p.clip]

		start := 0.0
		if next, seen := usedUntil[p.clip]; seen && next+slot.TargetDuration <= clip.AvailableDuration {
			start = next
		}
		end := start + slot.TargetDuration
		usedUntil[p.clip] = end

		confidence := p.score
		if fallback[i] {
			confidence *= FallbackConfidenceFactor
		}

		assignments = append(assignments, models.SlotAssignment{
			SlotOrder:         slot.Order,
			ClipID:            clip.ID,
			SourceRef:         clip.SourceRef,
			Confidence:        clamp01(confidence),
			ExtractStart:      start,
			ExtractEnd:        end,
			AvailableDuration: clip.AvailableDuration,
			Fallback:          fallback[i],
		})
	}
	return assignments
}

// usable drops clips that cannot supply footage
func usable(candidates []*models.CandidateClip) []*models.CandidateClip {
	clips := make([]*models.CandidateClip, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.SourceRef == "" || c.AvailableDuration <= 0 {
			continue
		}
		clips = append(clips, c)
	}
	return clips
}
