package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest marks a generation request rejected before queueing.
var ErrInvalidRequest = errors.New("invalid generation request")

// Priority is the dispatch class of a generation request. High always
// preempts low; within one class the latest request wins.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// String returns the priority name.
func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}

// Stage is the wire-level vocabulary for the two update cadences:
// "post" updates map to high priority, "pre" updates to low.
type Stage string

const (
	StagePre  Stage = "pre"
	StagePost Stage = "post"
)

// PriorityForStage maps a wire stage to its dispatch priority.
func PriorityForStage(s Stage) (Priority, error) {
	switch s {
	case StagePost:
		return PriorityHigh, nil
	case StagePre:
		return PriorityLow, nil
	default:
		return PriorityLow, fmt.Errorf("%w: unknown stage %q", ErrInvalidRequest, s)
	}
}

// OwnerRef identifies who a generation result belongs to: a live session
// (push delivery) or a durable client (pull delivery). At least one of the
// two must be set.
type OwnerRef struct {
	SessionID string
	ClientID  string
}

// Key returns the owner key used for registry scoping and slot lookup.
// Session identity wins when both are present.
func (o OwnerRef) Key() string {
	if o.SessionID != "" {
		return o.SessionID
	}
	return o.ClientID
}

// Live reports whether the owner is an attached session (push-capable).
func (o OwnerRef) Live() bool {
	return o.SessionID != ""
}

// GenerationRequest is one unit of generation work. Immutable once built.
type GenerationRequest struct {
	Owner     OwnerRef
	Priority  Priority
	Emotion   EmotionLabel
	Metadata  map[string]string
	CreatedAt time.Time
}

// NewGenerationRequest builds and validates a request. A request with
// neither session nor client identity never enters the queue.
func NewGenerationRequest(owner OwnerRef, priority Priority, emotion EmotionLabel, metadata map[string]string) (GenerationRequest, error) {
	if owner.SessionID == "" && owner.ClientID == "" {
		return GenerationRequest{}, fmt.Errorf("%w: neither session nor client identity given", ErrInvalidRequest)
	}
	if !ValidLabel(string(emotion)) {
		return GenerationRequest{}, fmt.Errorf("%w: unknown emotion %q", ErrInvalidRequest, emotion)
	}
	return GenerationRequest{
		Owner:     owner,
		Priority:  priority,
		Emotion:   emotion,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}, nil
}

// GeneratedArtifact is a stored generation result awaiting retrieval.
type GeneratedArtifact struct {
	OwnerKey    string
	ContentHash string
	Bytes       []byte
	CreatedAt   time.Time
}
