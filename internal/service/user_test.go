package service

import (
	"context"
	"errors"
	"testing"

	"github.com/fredhq/companion/internal/apperror"
	"github.com/fredhq/companion/internal/model"
	"github.com/fredhq/companion/internal/repository"
)

func TestRegister_Success(t *testing.T) {
	svc, _ := newTestUserService(t)

	user, err := svc.Register(context.Background(), &model.User{
		ExternalID: "clerk_abc",
		Email:      "founder@example.com",
		FirstName:  "Ada",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID == "" {
		t.Error("expected user to have an ID")
	}
	if user.ExternalID != "clerk_abc" {
		t.Errorf("ExternalID = %q, want %q", user.ExternalID, "clerk_abc")
	}
}

func TestRegister_TrimsExternalID(t *testing.T) {
	svc, repo := newTestUserService(t)

	_, err := svc.Register(context.Background(), &model.User{ExternalID: "  clerk_abc  "})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, ok := repo.users["clerk_abc"]; !ok {
		t.Error("user should be stored under the trimmed external ID")
	}
}

func TestRegister_EmptyExternalID(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Register(context.Background(), &model.User{ExternalID: "   "})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc, repo := newTestUserService(t)
	repo.addUser("clerk_abc")

	_, err := svc.Register(context.Background(), &model.User{ExternalID: "clerk_abc"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestUpdateProfile_Success(t *testing.T) {
	svc, repo := newTestUserService(t)
	repo.addUser("clerk_abc")

	user, err := svc.UpdateProfile(context.Background(), "clerk_abc", repository.UserUpdate{
		Email:     "new@example.com",
		FirstName: "Grace",
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if user.Email != "new@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "new@example.com")
	}
}

func TestUpdateProfile_UnknownUser(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.UpdateProfile(context.Background(), "clerk_nobody", repository.UserUpdate{})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeactivate_SoftDeletes(t *testing.T) {
	svc, repo := newTestUserService(t)
	repo.addUser("clerk_abc")

	if err := svc.Deactivate(context.Background(), "clerk_abc"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	// The row survives, only the flag flips.
	stored, ok := repo.users["clerk_abc"]
	if !ok {
		t.Fatal("user row should survive deactivation")
	}
	if stored.IsActive {
		t.Error("IsActive should be false after deactivation")
	}
}

func TestRecordSignIn_StampsTime(t *testing.T) {
	svc, repo := newTestUserService(t)
	repo.addUser("clerk_abc")

	if err := svc.RecordSignIn(context.Background(), "clerk_abc"); err != nil {
		t.Fatalf("RecordSignIn() error = %v", err)
	}
	if repo.users["clerk_abc"].LastSignInAt == nil {
		t.Error("LastSignInAt should be set")
	}
}

func TestGetByExternalID_EmptyID(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.GetByExternalID(context.Background(), "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}
