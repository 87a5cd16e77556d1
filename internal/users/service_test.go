package users

import (
	"context"
	"testing"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/models"
)

type fakeRepo struct {
	byPhone    map[string]*models.User
	lastPhone  string
	upsertErr  error
	getByIDArg string
}

func (f *fakeRepo) UpsertByPhone(ctx context.Context, phone string) (*models.User, error) {
	f.lastPhone = phone
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	if f.byPhone == nil {
		f.byPhone = map[string]*models.User{}
	}
	if u, ok := f.byPhone[phone]; ok {
		u.UpdatedAt = time.Now().UTC()
		return u, nil
	}
	now := time.Now().UTC()
	u := &models.User{ID: "id-" + phone, Phone: phone, UserType: models.UserTypeBuyer, CreatedAt: now, UpdatedAt: now}
	f.byPhone[phone] = u
	return u, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.getByIDArg = id
	for _, u := range f.byPhone {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func TestEnsureByPhone(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	u, err := svc.EnsureByPhone(ctx, " +91 98000-00000 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.Phone != "+919800000000" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if repo.lastPhone != "+919800000000" {
		t.Fatalf("repository saw unnormalized phone: %q", repo.lastPhone)
	}
	if u.ProfileComplete {
		t.Fatalf("new users start with an incomplete profile")
	}

	again, err := svc.EnsureByPhone(ctx, "+919800000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != u.ID {
		t.Fatalf("expected same user for same phone: %s != %s", again.ID, u.ID)
	}
	if again.CreatedAt.After(again.UpdatedAt) {
		t.Fatalf("createdAt after updatedAt: %v > %v", again.CreatedAt, again.UpdatedAt)
	}
}

func TestEnsureByPhone_Invalid(t *testing.T) {
	svc := NewService(&fakeRepo{})
	for _, p := range []string{"", "   ", "+", "98x00", "12+34"} {
		if _, err := svc.EnsureByPhone(context.Background(), p); err != ErrInvalidPhone {
			t.Fatalf("phone %q: expected ErrInvalidPhone, got %v", p, err)
		}
	}
}

func TestGetByID(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	u, _ := svc.EnsureByPhone(ctx, "+15550100")
	got, err := svc.GetByID(ctx, u.ID)
	if err != nil || got == nil || got.Phone != "+15550100" {
		t.Fatalf("unexpected lookup result: %+v, %v", got, err)
	}

	got, err = svc.GetByID(ctx, "")
	if err != nil || got != nil {
		t.Fatalf("expected nil for empty id, got %+v, %v", got, err)
	}
	if repo.getByIDArg != u.ID {
		t.Fatalf("empty id must not reach the repository")
	}
}
