package users

import (
	"context"
	"errors"
	"strings"

	"github.com/bazaar/bazaar/backend/identity/internal/models"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// EnsureByPhone returns the user for a verified phone number, creating one
// when needed.
func (s *Service) EnsureByPhone(ctx context.Context, phone string) (*models.User, error) {
	phone = normalizePhone(phone)
	if phone == "" {
		return nil, ErrInvalidPhone
	}
	return s.repo.UpsertByPhone(ctx, phone)
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, nil
	}
	return s.repo.GetByID(ctx, id)
}

// normalizePhone strips formatting so "+91 98000-00000" and "+919800000000"
// map to the same account.
func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	if strings.TrimPrefix(b.String(), "+") == "" {
		return ""
	}
	return b.String()
}
