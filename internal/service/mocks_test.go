package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

// =========================================================================
// MOCK REPOSITORIES
// =========================================================================
//
// Hand-written in-memory fakes for the repository interfaces. The services
// only see the interfaces, so these are drop-in replacements for the sqlite
// implementation; no database setup, and error paths (unknown user, forced
// failure) are trivial to trigger.

type mockUserRepo struct {
	users  map[string]*model.User // keyed by external ID
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

// addUser seeds a user directly, bypassing validation.
func (m *mockUserRepo) addUser(externalID string) *model.User {
	m.nextID++
	u := &model.User{
		ID:         fmt.Sprintf("user-%d", m.nextID),
		ExternalID: externalID,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	m.users[externalID] = u
	return u
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if _, ok := m.users[user.ExternalID]; ok {
		return apperror.Conflict("user", user.ExternalID)
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	stored := *user
	m.users[user.ExternalID] = &stored
	return nil
}

func (m *mockUserRepo) GetByExternalID(_ context.Context, externalID string) (*model.User, error) {
	u, ok := m.users[externalID]
	if !ok {
		return nil, apperror.NotFound("user", externalID)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) Update(_ context.Context, externalID string, upd repository.UserUpdate) (*model.User, error) {
	u, ok := m.users[externalID]
	if !ok {
		return nil, apperror.NotFound("user", externalID)
	}
	u.Email = upd.Email
	u.FirstName = upd.FirstName
	u.LastName = upd.LastName
	u.ImageURL = upd.ImageURL
	if upd.Metadata != nil {
		u.Metadata = upd.Metadata
	}
	u.UpdatedAt = time.Now().UTC()
	result := *u
	return &result, nil
}

func (m *mockUserRepo) Deactivate(_ context.Context, externalID string) error {
	u, ok := m.users[externalID]
	if !ok {
		return apperror.NotFound("user", externalID)
	}
	u.IsActive = false
	return nil
}

func (m *mockUserRepo) TouchLastSignIn(_ context.Context, externalID string) error {
	u, ok := m.users[externalID]
	if !ok {
		return apperror.NotFound("user", externalID)
	}
	now := time.Now().UTC()
	u.LastSignInAt = &now
	return nil
}

type mockEssayRepo struct {
	versions map[string][]model.EssayVersion // keyed by internal user ID, append order
	nextID   int
	failWith error // when set, every method returns this
}

func newMockEssayRepo() *mockEssayRepo {
	return &mockEssayRepo{versions: make(map[string][]model.EssayVersion)}
}

func (m *mockEssayRepo) CreateVersion(_ context.Context, userID string, sections []model.Section) (*model.EssayVersion, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.nextID++
	chain := m.versions[userID]
	v := model.EssayVersion{
		ID:        fmt.Sprintf("essay-%d", m.nextID),
		UserID:    userID,
		Version:   len(chain) + 1,
		Sections:  sections,
		CreatedAt: time.Now().UTC(),
	}
	if len(chain) > 0 {
		prev := chain[len(chain)-1].ID
		v.PreviousVersionID = &prev
		v.Delta = &model.Delta{Added: []string{}, Removed: []string{}, Modified: []model.Change{}}
	}
	m.versions[userID] = append(chain, v)
	result := v
	return &result, nil
}

func (m *mockEssayRepo) GetRecentVersions(_ context.Context, userID string, limit int) ([]model.EssayVersion, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	chain := m.versions[userID]
	result := make([]model.EssayVersion, 0, limit)
	for i := len(chain) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, chain[i])
	}
	return result, nil
}

func (m *mockEssayRepo) GetVersionByID(_ context.Context, id string) (*model.EssayVersion, error) {
	for _, chain := range m.versions {
		for _, v := range chain {
			if v.ID == id {
				result := v
				return &result, nil
			}
		}
	}
	return nil, apperror.NotFound("essay version", id)
}

func (m *mockEssayRepo) GetVersionByNumber(_ context.Context, userID string, version int) (*model.EssayVersion, error) {
	for _, v := range m.versions[userID] {
		if v.Version == version {
			result := v
			return &result, nil
		}
	}
	return nil, apperror.NotFound("essay version", fmt.Sprintf("%s/v%d", userID, version))
}

type mockTidbitRepo struct {
	tidbits  map[string]*model.Tidbit // keyed by tidbit ID
	order    []string                 // creation order
	byEssay  map[string][]string      // essay ID -> ordered tidbit IDs
	nextID   int
	failWith error
}

func newMockTidbitRepo() *mockTidbitRepo {
	return &mockTidbitRepo{
		tidbits: make(map[string]*model.Tidbit),
		byEssay: make(map[string][]string),
	}
}

func (m *mockTidbitRepo) CreateTidbits(_ context.Context, userID string, items []repository.NewTidbit) ([]model.Tidbit, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	created := make([]model.Tidbit, 0, len(items))
	for _, item := range items {
		m.nextID++
		t := model.Tidbit{
			ID:             fmt.Sprintf("tidbit-%d", m.nextID),
			UserID:         userID,
			Type:           item.Type,
			Content:        item.Content,
			RelevanceScore: item.RelevanceScore,
			CreatedAt:      time.Now().UTC(),
		}
		m.tidbits[t.ID] = &t
		m.order = append(m.order, t.ID)
		created = append(created, t)
	}
	return created, nil
}

func (m *mockTidbitRepo) GetTopRelevant(_ context.Context, userID string, limit int) ([]model.Tidbit, error) {
	result := m.forUser(userID)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RelevanceScore > result[j].RelevanceScore
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockTidbitRepo) GetRecent(_ context.Context, userID string, limit int) ([]model.Tidbit, error) {
	result := m.forUser(userID)
	// forUser returns creation order; newest first means reversed.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockTidbitRepo) TouchRelevance(_ context.Context, tidbitID string, newScore float64) error {
	t, ok := m.tidbits[tidbitID]
	if !ok {
		return apperror.NotFound("tidbit", tidbitID)
	}
	t.RelevanceScore = newScore
	now := time.Now().UTC()
	t.LastUsedAt = &now
	return nil
}

func (m *mockTidbitRepo) AssociateTidbits(_ context.Context, essayID string, tidbitIDs []string) error {
	m.byEssay[essayID] = append([]string(nil), tidbitIDs...)
	return nil
}

func (m *mockTidbitRepo) GetTidbitsForEssay(_ context.Context, essayID string) ([]model.Tidbit, error) {
	result := make([]model.Tidbit, 0)
	for _, id := range m.byEssay[essayID] {
		if t, ok := m.tidbits[id]; ok {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *mockTidbitRepo) forUser(userID string) []model.Tidbit {
	result := make([]model.Tidbit, 0)
	for _, id := range m.order {
		if m.tidbits[id].UserID == userID {
			result = append(result, *m.tidbits[id])
		}
	}
	return result
}

type mockCallRepo struct {
	calls  map[string]*model.CallSummary // keyed by provider call ID
	order  []string
	nextID int
}

func newMockCallRepo() *mockCallRepo {
	return &mockCallRepo{calls: make(map[string]*model.CallSummary)}
}

func (m *mockCallRepo) CreateCallSummary(_ context.Context, call *model.CallSummary) error {
	if _, ok := m.calls[call.CallID]; ok {
		return apperror.Conflict("call summary", call.CallID)
	}
	m.nextID++
	call.ID = fmt.Sprintf("call-summary-%d", m.nextID)
	stored := *call
	m.calls[call.CallID] = &stored
	m.order = append(m.order, call.CallID)
	return nil
}

func (m *mockCallRepo) GetCallSummaryByCallID(_ context.Context, callID string) (*model.CallSummary, error) {
	c, ok := m.calls[callID]
	if !ok {
		return nil, apperror.NotFound("call summary", callID)
	}
	result := *c
	return &result, nil
}

func (m *mockCallRepo) GetRecentCallSummaries(_ context.Context, userID string, limit int) ([]model.CallSummary, error) {
	result := make([]model.CallSummary, 0)
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		c := m.calls[m.order[i]]
		if c.UserID == userID {
			result = append(result, *c)
		}
	}
	return result, nil
}

// mockGenerationStore records CommitGeneration calls so tests can assert
// whether (and with what) a commit happened.
type mockGenerationStore struct {
	commits  int
	lastUser string
	essays   *mockEssayRepo
	tidbits  *mockTidbitRepo
	failWith error
}

func newMockGenerationStore() *mockGenerationStore {
	return &mockGenerationStore{
		essays:  newMockEssayRepo(),
		tidbits: newMockTidbitRepo(),
	}
}

func (m *mockGenerationStore) CommitGeneration(ctx context.Context, userID string, sections []model.Section, tidbits []repository.NewTidbit) (*model.EssayVersion, []model.Tidbit, error) {
	if m.failWith != nil {
		return nil, nil, m.failWith
	}
	version, err := m.essays.CreateVersion(ctx, userID, sections)
	if err != nil {
		return nil, nil, err
	}
	created, err := m.tidbits.CreateTidbits(ctx, userID, tidbits)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(created))
	for i, t := range created {
		ids[i] = t.ID
	}
	if err := m.tidbits.AssociateTidbits(ctx, version.ID, ids); err != nil {
		return nil, nil, err
	}
	m.commits++
	m.lastUser = userID
	return version, created, nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestUserService(t *testing.T) (*UserService, *mockUserRepo) {
	t.Helper()
	repo := newMockUserRepo()
	return NewUserService(repo, testLogger()), repo
}

func newTestEssayService(t *testing.T) (*EssayService, *mockEssayRepo, *mockUserRepo) {
	t.Helper()
	essays := newMockEssayRepo()
	users := newMockUserRepo()
	return NewEssayService(essays, users, testLogger()), essays, users
}

func newTestTidbitService(t *testing.T) (*TidbitService, *mockTidbitRepo, *mockUserRepo) {
	t.Helper()
	tidbits := newMockTidbitRepo()
	users := newMockUserRepo()
	return NewTidbitService(tidbits, users, testLogger()), tidbits, users
}
