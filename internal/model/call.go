package model

import "time"

// CallMessage is one turn of a voice conversation as reported by the call
// provider.
type CallMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// CallSummary is the durable record of a finished voice call.
//
// CallID is the provider's unique call identifier and carries the
// idempotency guarantee for webhook deliveries: the provider retries
// end-of-call reports, so a second delivery with a CallID we already stored
// is ignored rather than recorded twice.
//
// UserID / ExternalUserID may both be empty; the provider does not always
// manage to attach an identity to a call. Calls without a resolvable user are
// stored for completeness but never trigger essay generation.
type CallSummary struct {
	ID             string        `json:"id"`
	CallID         string        `json:"callId"` // provider's call id, unique
	UserID         string        `json:"userId,omitempty"`
	ExternalUserID string        `json:"externalUserId,omitempty"`
	Summary        string        `json:"summary"`
	Transcript     string        `json:"transcript"`
	Messages       []CallMessage `json:"messages,omitempty"`
	EndedReason    string        `json:"endedReason,omitempty"`
	RecordingURL   string        `json:"recordingUrl,omitempty"`
	AssistantID    string        `json:"assistantId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}
