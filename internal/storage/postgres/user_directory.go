package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

type userDirectory struct {
	db *sql.DB
}

// NewUserDirectory создаёт справочник пользователей поверх таблицы users.
func NewUserDirectory(store *Store) domain.UserDirectory {
	return &userDirectory{db: store.DB()}
}

func (d *userDirectory) Lookup(ctx context.Context, userID string) (domain.UserSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var user domain.UserSummary
	err := d.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserSummary{}, domain.ErrUserNotFound
		}
		return domain.UserSummary{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

var _ domain.UserDirectory = (*userDirectory)(nil)
