package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/service"
)

// voiceUserRef is the {userId, clerkUserId} pair the voice provider
// scatters across several metadata locations.
type voiceUserRef struct {
	UserID      string `json:"userId"`
	ClerkUserID string `json:"clerkUserId"`
}

// voiceCall is the call object inside a provider message.
type voiceCall struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	AssistantID        string `json:"assistantId"`
	AssistantOverrides *struct {
		Metadata       *voiceUserRef `json:"metadata"`
		VariableValues *voiceUserRef `json:"variableValues"`
	} `json:"assistantOverrides"`
	User *struct {
		ID string `json:"id"`
	} `json:"user"`
}

// voiceMessage is one provider event. Most fields are only populated for
// end-of-call-report.
type voiceMessage struct {
	Type         string    `json:"type"`
	Call         voiceCall `json:"call"`
	EndedReason  string    `json:"endedReason"`
	RecordingURL string    `json:"recordingUrl"`
	Summary      string    `json:"summary"`
	Transcript   string    `json:"transcript"`
	Messages     []struct {
		Role    string `json:"role"`
		Message string `json:"message"`
	} `json:"messages"`
	Assistant *struct {
		VariableValues *voiceUserRef `json:"variableValues"`
		Metadata       *voiceUserRef `json:"metadata"`
	} `json:"assistant"`
}

// voicePayload is the provider's outer envelope.
type voicePayload struct {
	Message voiceMessage `json:"message"`
}

// VoiceHandler receives call events from the voice provider. Only
// end-of-call-report is acted on today; the other event types are
// acknowledged and dropped.
type VoiceHandler struct {
	calls  *service.CallService
	logger *slog.Logger
}

func NewVoiceHandler(calls *service.CallService, logger *slog.Logger) *VoiceHandler {
	return &VoiceHandler{calls: calls, logger: logger}
}

// HandleEvent is the webhook endpoint.
//
// HTTP: POST /api/webhooks/voice
func (h *VoiceHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var payload voicePayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	msg := payload.Message
	h.logger.Info("voice event received",
		slog.String("type", msg.Type),
		slog.String("callId", msg.Call.ID),
	)

	switch msg.Type {
	case "end-of-call-report":
		if err := h.calls.ProcessEndOfCall(r.Context(), callSummaryFromMessage(msg)); err != nil {
			h.logger.Error("end-of-call processing failed",
				slog.String("callId", msg.Call.ID),
				slog.String("error", err.Error()),
			)
			respondError(w, http.StatusInternalServerError, "failed to process webhook")
			return
		}
	case "function-call", "assistant-request", "status-update", "hang":
		// Known event types we do not act on yet.
	default:
		// Unknown types are acknowledged so the provider stops retrying.
	}

	respondOK(w, "webhook processed")
}

// callSummaryFromMessage flattens a provider message into a CallSummary,
// resolving the owning user from the metadata fallback chain.
func callSummaryFromMessage(msg voiceMessage) *model.CallSummary {
	userID, externalUserID := resolveCallUser(msg)

	messages := make([]model.CallMessage, 0, len(msg.Messages))
	for _, m := range msg.Messages {
		messages = append(messages, model.CallMessage{Role: m.Role, Message: m.Message})
	}

	return &model.CallSummary{
		CallID:         msg.Call.ID,
		UserID:         userID,
		ExternalUserID: externalUserID,
		Summary:        msg.Summary,
		Transcript:     msg.Transcript,
		Messages:       messages,
		EndedReason:    msg.EndedReason,
		RecordingURL:   msg.RecordingURL,
		AssistantID:    msg.Call.AssistantID,
	}
}

// resolveCallUser walks the metadata locations in fixed precedence order.
// The two ids resolve independently: the first non-empty value wins per
// field. Precedence, most reliable first:
//
//  1. call.assistantOverrides.metadata
//  2. call.assistantOverrides.variableValues
//  3. assistant.variableValues
//  4. assistant.metadata
//  5. call.user.id (legacy, internal id only)
func resolveCallUser(msg voiceMessage) (userID, externalUserID string) {
	refs := make([]*voiceUserRef, 0, 4)
	if o := msg.Call.AssistantOverrides; o != nil {
		refs = append(refs, o.Metadata, o.VariableValues)
	}
	if a := msg.Assistant; a != nil {
		refs = append(refs, a.VariableValues, a.Metadata)
	}

	for _, ref := range refs {
		if ref == nil {
			continue
		}
		if userID == "" {
			userID = ref.UserID
		}
		if externalUserID == "" {
			externalUserID = ref.ClerkUserID
		}
	}

	if userID == "" && msg.Call.User != nil {
		userID = msg.Call.User.ID
	}
	return userID, externalUserID
}
