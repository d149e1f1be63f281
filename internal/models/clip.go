package models

// CandidateClip is a piece of source footage that could fill a slot.
// Immutable once fetched for a job.
type CandidateClip struct {
	ID                string  `json:"id" toml:"id" yaml:"id" badgerhold:"key" validate:"required"`
	PropertyID        string  `json:"property_id" toml:"property_id" yaml:"property_id" badgerhold:"index" validate:"required"`
	SourceRef         string  `json:"source_ref" toml:"source_ref" yaml:"source_ref" validate:"required"`
	Description       string  `json:"description" toml:"description" yaml:"description"`
	AvailableDuration float64 `json:"available_duration" toml:"available_duration" yaml:"available_duration" validate:"gt=0"`
}

// SlotAssignment pairs a slot with the chosen clip and the exact sub-range to use.
// ExtractEnd may exceed AvailableDuration: the extractor loop-extends short footage.
type SlotAssignment struct {
	SlotOrder         int     `json:"slot_order"`
	ClipID            string  `json:"clip_id"`
	SourceRef         string  `json:"source_ref"`
	Confidence        float64 `json:"confidence"`
	ExtractStart      float64 `json:"extract_start"`
	ExtractEnd        float64 `json:"extract_end"`
	AvailableDuration float64 `json:"available_duration"`
	Fallback          bool    `json:"fallback"` // Clip reused because unique candidates ran out
}

// Duration returns the length of the extract range in seconds.
func (a SlotAssignment) Duration() float64 {
	return a.ExtractEnd - a.ExtractStart
}
