package model

import "time"

// TidbitType classifies an extracted insight. The set is closed: generation
// output carrying any other label is rejected before it reaches storage.
type TidbitType string

const (
	TidbitMood    TidbitType = "Mood"    // current emotional weather
	TidbitFocus   TidbitType = "Focus"   // what is occupying their attention
	TidbitValue   TidbitType = "Value"   // a core value surfacing
	TidbitTension TidbitType = "Tension" // an internal or external tension
	TidbitJoy     TidbitType = "Joy"     // a positive-affect moment
	TidbitFuture  TidbitType = "Future"  // a forward-looking statement
	TidbitEcho    TidbitType = "Echo"    // a recurring pattern
	TidbitShift   TidbitType = "Shift"   // an observed change
)

// ValidTidbitType reports whether t is one of the closed set of labels.
func ValidTidbitType(t TidbitType) bool {
	switch t {
	case TidbitMood, TidbitFocus, TidbitValue, TidbitTension,
		TidbitJoy, TidbitFuture, TidbitEcho, TidbitShift:
		return true
	}
	return false
}

// Tidbit is a short labeled insight extracted from a conversation.
//
// RelevanceScore is conventionally 0–1 but not clamped; a separate scoring
// process may rescale it later via TouchRelevance, which also stamps
// LastUsedAt. CreatedAt never changes after insert. Tidbits are created in
// batches alongside an essay version and are not deleted in normal operation.
type Tidbit struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Type           TidbitType `json:"type"`
	Content        string     `json:"content"`
	RelevanceScore float64    `json:"relevanceScore"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
}

// EssayTidbit links one essay version to one tidbit with an explicit
// presentation position. Position is the tidbit's index in the order the
// generator returned them, unique within an essay's association set.
type EssayTidbit struct {
	EssayID  string `json:"essayId"`
	TidbitID string `json:"tidbitId"`
	Position int    `json:"position"`
}
