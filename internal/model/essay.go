package model

import "time"

// Section is one titled block of a Living Essay.
//
// The heading doubles as the section's identity across versions: when a new
// version is written, a section in the new payload is "the same section" as
// one in the previous payload iff the headings match exactly. A renamed
// heading therefore reads as one section removed and another added; that is
// deliberate, not a bug, and keeps delta computation free of any fuzzy
// matching.
type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Change is a (before, after) pair for a section whose content changed
// between versions. Both fields hold the WHOLE section content, not just the
// changed fragment; the UI renders the full old and new text side by side.
type Change struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Delta describes what changed between an essay version and its predecessor.
//
// Added and Removed hold the whole contents of sections whose headings
// appeared or disappeared. Modified lists whole-content pairs for every
// section that was edited in place; in-place edits contribute nothing to
// Added or Removed. The first version of a chain has no predecessor and
// therefore no Delta.
type Delta struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []Change `json:"modified"`
}

// EssayVersion is an immutable snapshot of a user's Living Essay.
//
// Versions form a per-user chain: numbers start at 1 and are contiguous, and
// each version points at the version that was latest when it was written.
// PreviousVersionID is set exactly once, at creation, and never mutated, so
// the chain cannot fork or cycle. Versions are never updated or deleted;
// the whole table is append-only.
type EssayVersion struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Version           int       `json:"version"` // per-user, contiguous, starts at 1
	Sections          []Section `json:"sections"`
	PreviousVersionID *string   `json:"previousVersionId,omitempty"`
	Delta             *Delta    `json:"delta,omitempty"` // nil for version 1
	CreatedAt         time.Time `json:"createdAt"`
}
