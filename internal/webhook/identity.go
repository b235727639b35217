// Package webhook receives inbound events from the identity and voice
// providers. Handlers here parse and verify provider payloads, translate
// them into domain calls, and map outcomes to the status codes the
// providers expect: 400 for bad signatures, 5xx when processing fails so
// the provider retries, 200 for everything handled (including intentional
// no-ops).
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
	"github.com/fredhq/companion/internal/service"
)

// maxPayloadBytes bounds webhook bodies. Provider events are small; anything
// past this is abuse.
const maxPayloadBytes = 1 << 20

// identityEvent is the provider's envelope: an event type plus a payload
// whose shape depends on the type.
type identityEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// identityUser is the user payload carried by user.* events.
type identityUser struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	ImageURL              string `json:"image_url"`
}

// identitySession is the payload carried by session.created.
type identitySession struct {
	UserID string `json:"user_id"`
}

// IdentityHandler receives signed user-lifecycle events from the identity
// provider. Every request is signature-verified against the shared webhook
// secret before any payload field is trusted.
type IdentityHandler struct {
	verifier *svix.Webhook
	users    *service.UserService
	logger   *slog.Logger
}

func NewIdentityHandler(secret string, users *service.UserService, logger *slog.Logger) (*IdentityHandler, error) {
	verifier, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("initializing webhook verifier: %w", err)
	}
	return &IdentityHandler{verifier: verifier, users: users, logger: logger}, nil
}

// HandleEvent is the webhook endpoint.
//
// HTTP: POST /api/webhooks/identity
func (h *IdentityHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	// The signature covers the exact raw bytes, so the body must be read
	// before any JSON decoding touches it.
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read body")
		return
	}

	if r.Header.Get("svix-id") == "" ||
		r.Header.Get("svix-timestamp") == "" ||
		r.Header.Get("svix-signature") == "" {
		respondError(w, http.StatusBadRequest, "missing signature headers")
		return
	}

	if err := h.verifier.Verify(payload, r.Header); err != nil {
		h.logger.Warn("identity webhook signature rejected", slog.String("error", err.Error()))
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	var event identityEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		respondError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	h.logger.Info("identity event received", slog.String("type", event.Type))

	if err := h.process(r, event); err != nil {
		h.logger.Error("identity event processing failed",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	respondOK(w, "event processed")
}

func (h *IdentityHandler) process(r *http.Request, event identityEvent) error {
	switch event.Type {
	case "user.created":
		return h.handleUserCreated(r, event.Data)
	case "user.updated":
		return h.handleUserUpdated(r, event.Data)
	case "user.deleted":
		return h.handleUserDeleted(r, event.Data)
	case "session.created":
		return h.handleSessionCreated(r, event.Data)
	default:
		h.logger.Info("ignoring unhandled identity event", slog.String("type", event.Type))
		return nil
	}
}

func (h *IdentityHandler) handleUserCreated(r *http.Request, data json.RawMessage) error {
	user, metadata, err := decodeIdentityUser(data)
	if err != nil {
		return err
	}

	_, err = h.users.Register(r.Context(), &model.User{
		ExternalID: user.ID,
		Email:      primaryEmail(user),
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		ImageURL:   user.ImageURL,
		Metadata:   metadata,
	})
	// Providers redeliver events; a second user.created for the same ID
	// means we already did this work.
	if errors.Is(err, apperror.ErrConflict) {
		h.logger.Info("user already registered", slog.String("externalId", user.ID))
		return nil
	}
	return err
}

func (h *IdentityHandler) handleUserUpdated(r *http.Request, data json.RawMessage) error {
	user, metadata, err := decodeIdentityUser(data)
	if err != nil {
		return err
	}

	_, err = h.users.UpdateProfile(r.Context(), user.ID, repository.UserUpdate{
		Email:     primaryEmail(user),
		FirstName: user.FirstName,
		LastName:  user.LastName,
		ImageURL:  user.ImageURL,
		Metadata:  metadata,
	})
	return err
}

func (h *IdentityHandler) handleUserDeleted(r *http.Request, data json.RawMessage) error {
	var user identityUser
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("decoding user payload: %w", err)
	}
	return h.users.Deactivate(r.Context(), user.ID)
}

func (h *IdentityHandler) handleSessionCreated(r *http.Request, data json.RawMessage) error {
	var session identitySession
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("decoding session payload: %w", err)
	}
	return h.users.RecordSignIn(r.Context(), session.UserID)
}

// decodeIdentityUser decodes a user.* payload twice: once into the typed
// struct for the profile fields, once into a generic map kept wholesale as
// the user's metadata (the onboarding archetypes live in there).
func decodeIdentityUser(data json.RawMessage) (identityUser, map[string]any, error) {
	var user identityUser
	if err := json.Unmarshal(data, &user); err != nil {
		return user, nil, fmt.Errorf("decoding user payload: %w", err)
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return user, nil, fmt.Errorf("decoding user metadata: %w", err)
	}
	return user, metadata, nil
}

// primaryEmail resolves the address flagged as primary. No fallback: a
// payload without a matching primary yields an empty email.
func primaryEmail(user identityUser) string {
	for _, addr := range user.EmailAddresses {
		if addr.ID == user.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	return ""
}
