package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/auth"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/service"
)

// UserHandler serves user lookups and the voice-session priming endpoint.
type UserHandler struct {
	users   *service.UserService
	tidbits *service.TidbitService
	calls   *service.CallService
	tokens  *auth.TokenService
	logger  *slog.Logger
}

func NewUserHandler(
	users *service.UserService,
	tidbits *service.TidbitService,
	calls *service.CallService,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{users: users, tidbits: tidbits, calls: calls, tokens: tokens, logger: logger}
}

// HandleGet fetches a user by their external ID.
//
// HTTP: GET /api/users/{externalID}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")

	user, err := h.users.GetByExternalID(r.Context(), externalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleTidbits returns a user's most relevant tidbits.
//
// HTTP: GET /api/users/{externalID}/tidbits
// Query: limit (optional)
func (h *UserHandler) HandleTidbits(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")

	tidbits, err := h.tidbits.TopRelevant(r.Context(), externalID, queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tidbits)
}

// voiceChatDataResponse primes a voice session: the founder's archetype
// sketch in prose plus their recent call history, so the assistant opens
// with context instead of a cold start.
type voiceChatDataResponse struct {
	OnboardingArchetypes string              `json:"onboardingArchetypes"`
	CallSummaries        []model.CallSummary `json:"callSummaries"`
	// VoiceToken is a short-lived credential the voice client presents
	// back to this API during the call.
	VoiceToken string `json:"voiceToken,omitempty"`
}

// voiceTokenTTL bounds the voice client's credential to roughly one call.
const voiceTokenTTL = 15 * time.Minute

// HandleVoiceChatData returns the context bundle for starting a voice call.
//
// HTTP: GET /api/users/{externalID}/voice-chat-data
func (h *UserHandler) HandleVoiceChatData(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")

	user, err := h.users.GetByExternalID(r.Context(), externalID)
	if err != nil {
		// An unknown user still gets a usable (empty) bundle; the voice
		// client treats this endpoint as best-effort.
		if errors.Is(err, apperror.ErrNotFound) {
			writeJSON(w, http.StatusOK, voiceChatDataResponse{
				OnboardingArchetypes: service.NoArchetypeData,
				CallSummaries:        []model.CallSummary{},
			})
			return
		}
		writeError(w, err)
		return
	}

	summaries, err := h.calls.RecentCalls(r.Context(), externalID, queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []model.CallSummary{}
	}

	token, err := h.tokens.GenerateWithDuration(user.ExternalID, voiceTokenTTL)
	if err != nil {
		h.logger.Error("failed to mint voice token", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voiceChatDataResponse{
		OnboardingArchetypes: service.ArchetypeSummary(user),
		CallSummaries:        summaries,
		VoiceToken:           token,
	})
}
