package models

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job id has no record
	ErrJobNotFound = errors.New("job not found")

	// ErrTemplateNotFound is returned when a template id has no record
	ErrTemplateNotFound = errors.New("template not found")

	// ErrOwnershipLost is returned when a conditional update fails because another
	// actor (usually the recovery monitor) changed the job first
	ErrOwnershipLost = errors.New("job ownership lost")

	// ErrNoMessage is returned when the queue is empty
	ErrNoMessage = errors.New("no messages in queue")
)

// MalformedTemplateError means the template cannot be used. Permanent.
type MalformedTemplateError struct {
	TemplateID string
	Reason     string
}

func (e *MalformedTemplateError) Error() string {
	if e.TemplateID == "" {
		return fmt.Sprintf("malformed template: %s", e.Reason)
	}
	return fmt.Sprintf("malformed template %s: %s", e.TemplateID, e.Reason)
}

// NoCandidatesError means there is no footage to match. Permanent.
type NoCandidatesError struct {
	PropertyID string
}

func (e *NoCandidatesError) Error() string {
	return fmt.Sprintf("no candidate clips for property %q", e.PropertyID)
}

// SegmentExtractionError reports a failed extraction for one slot
type SegmentExtractionError struct {
	SlotOrder int
	ClipID    string
	Err       error
}

func (e *SegmentExtractionError) Error() string {
	return fmt.Sprintf("segment extraction failed for slot %d (clip %s): %v", e.SlotOrder, e.ClipID, e.Err)
}

func (e *SegmentExtractionError) Unwrap() error { return e.Err }

// AssemblyError reports a concatenation failure. There is no partial output.
type AssemblyError struct {
	Op  string
	Err error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly %s failed: %v", e.Op, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// PublishError reports a failed upload of the deliverable. Transient.
type PublishError struct {
	Key string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s failed: %v", e.Key, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// StuckJobExceededRetriesError is emitted when the recovery monitor abandons a job
type StuckJobExceededRetriesError struct {
	JobID      string
	RetryCount int
	MaxRetries int
}

func (e *StuckJobExceededRetriesError) Error() string {
	return fmt.Sprintf("job %s exceeded retry budget (%d/%d)", e.JobID, e.RetryCount, e.MaxRetries)
}

// IsPermanent reports whether err can never succeed on retry
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var malformed *MalformedTemplateError
	var noCandidates *NoCandidatesError
	var exceeded *StuckJobExceededRetriesError
	return errors.As(err, &malformed) ||
		errors.As(err, &noCandidates) ||
		errors.As(err, &exceeded) ||
		errors.Is(err, ErrTemplateNotFound)
}
