package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// UserDirectory: справочник пользователей в памяти.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.UserSummary
}

// NewUserDirectory создаёт справочник с начальным набором пользователей.
func NewUserDirectory(users ...domain.UserSummary) *UserDirectory {
	d := &UserDirectory{users: make(map[string]domain.UserSummary, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Register добавляет или заменяет пользователя.
func (d *UserDirectory) Register(user domain.UserSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *UserDirectory) Lookup(_ context.Context, userID string) (domain.UserSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[userID]
	if !ok {
		return domain.UserSummary{}, domain.ErrUserNotFound
	}
	return user, nil
}

var _ domain.UserDirectory = (*UserDirectory)(nil)
