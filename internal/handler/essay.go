package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/auth"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/service"
)

// EssayHandler serves the authenticated Living Essay surface. The owning
// user always comes from the access token, never from the URL, so one user
// cannot read another's essay.
type EssayHandler struct {
	essays  *service.EssayService
	tidbits *service.TidbitService
	logger  *slog.Logger
}

func NewEssayHandler(essays *service.EssayService, tidbits *service.TidbitService, logger *slog.Logger) *EssayHandler {
	return &EssayHandler{essays: essays, tidbits: tidbits, logger: logger}
}

// essayPageResponse is the GET payload: recent versions plus recent
// tidbits, fetched together so the UI renders in one round trip.
type essayPageResponse struct {
	Essays  []model.EssayVersion `json:"essays"`
	Tidbits []model.Tidbit       `json:"tidbits"`
}

// HandleGet returns the caller's recent essay versions and tidbits.
//
// HTTP: GET /api/living-essay
// Query: limit (optional), version (optional, fetches one numbered version)
func (h *EssayHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	externalID, ok := auth.ExternalIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.ValidationFailed("auth", "authenticated user required"))
		return
	}

	if v := r.URL.Query().Get("version"); v != "" {
		h.handleGetVersion(w, r, externalID, v)
		return
	}

	limit := queryInt(r, "limit")

	essays, err := h.essays.RecentVersions(r.Context(), externalID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	tidbits, err := h.tidbits.Recent(r.Context(), externalID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, essayPageResponse{Essays: essays, Tidbits: tidbits})
}

func (h *EssayHandler) handleGetVersion(w http.ResponseWriter, r *http.Request, externalID, raw string) {
	number, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, apperror.ValidationFailed("version", "version must be an integer"))
		return
	}

	version, verr := h.essays.VersionByNumber(r.Context(), externalID, number)
	if verr != nil {
		writeError(w, verr)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// submitEssayRequest is the POST body.
type submitEssayRequest struct {
	Sections []model.Section `json:"sections"`
}

// HandleSubmit appends a new essay version from directly submitted
// sections.
//
// HTTP: POST /api/living-essay
// Body: {"sections": [{"heading": "...", "content": "..."}]}
func (h *EssayHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	externalID, ok := auth.ExternalIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.ValidationFailed("auth", "authenticated user required"))
		return
	}

	var req submitEssayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid essay submission", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	version, err := h.essays.SubmitSections(r.Context(), externalID, req.Sections)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, version)
}

// queryInt parses an integer query parameter; 0 means absent or invalid,
// and the service layer substitutes its default.
func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
