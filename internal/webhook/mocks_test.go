package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/generation"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

// In-memory fakes for the repository interfaces, enough to exercise the
// webhook handlers end to end through the real services.

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) addUser(externalID string) *model.User {
	f.nextID++
	u := &model.User{
		ID:         fmt.Sprintf("user-%d", f.nextID),
		ExternalID: externalID,
		IsActive:   true,
	}
	f.users[externalID] = u
	return u
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	if _, ok := f.users[user.ExternalID]; ok {
		return apperror.Conflict("user", user.ExternalID)
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	stored := *user
	f.users[user.ExternalID] = &stored
	return nil
}

func (f *fakeUserRepo) GetByExternalID(_ context.Context, externalID string) (*model.User, error) {
	u, ok := f.users[externalID]
	if !ok {
		return nil, apperror.NotFound("user", externalID)
	}
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) Update(_ context.Context, externalID string, upd repository.UserUpdate) (*model.User, error) {
	u, ok := f.users[externalID]
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
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) Deactivate(_ context.Context, externalID string) error {
	u, ok := f.users[externalID]
	if !ok {
		return apperror.NotFound("user", externalID)
	}
	u.IsActive = false
	return nil
}

func (f *fakeUserRepo) TouchLastSignIn(_ context.Context, externalID string) error {
	u, ok := f.users[externalID]
	if !ok {
		return apperror.NotFound("user", externalID)
	}
	now := time.Now().UTC()
	u.LastSignInAt = &now
	return nil
}

type fakeCallRepo struct {
	calls  map[string]*model.CallSummary
	nextID int
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: make(map[string]*model.CallSummary)}
}

func (f *fakeCallRepo) CreateCallSummary(_ context.Context, call *model.CallSummary) error {
	if _, ok := f.calls[call.CallID]; ok {
		return apperror.Conflict("call summary", call.CallID)
	}
	f.nextID++
	call.ID = fmt.Sprintf("call-summary-%d", f.nextID)
	stored := *call
	f.calls[call.CallID] = &stored
	return nil
}

func (f *fakeCallRepo) GetCallSummaryByCallID(_ context.Context, callID string) (*model.CallSummary, error) {
	c, ok := f.calls[callID]
	if !ok {
		return nil, apperror.NotFound("call summary", callID)
	}
	result := *c
	return &result, nil
}

func (f *fakeCallRepo) GetRecentCallSummaries(_ context.Context, userID string, limit int) ([]model.CallSummary, error) {
	result := make([]model.CallSummary, 0)
	for _, c := range f.calls {
		if c.UserID == userID {
			result = append(result, *c)
		}
	}
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

type fakeEssayGenerator struct {
	calls    int
	lastCall *model.CallSummary
	err      error
}

func (f *fakeEssayGenerator) GenerateFromCall(_ context.Context, call *model.CallSummary) (*generation.GeneratedContent, error) {
	f.calls++
	f.lastCall = call
	if f.err != nil {
		return nil, f.err
	}
	return &generation.GeneratedContent{
		Sections: []generation.GeneratedSection{{Heading: "Theme", Content: "content"}},
		Tidbits:  []generation.GeneratedTidbit{},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
