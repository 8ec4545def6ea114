package sqlite

import (
	"context"

	"github.com/truecredit/authserver/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, display_name, email, password_hash, totp_secret, roles, created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var roles string
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.PasswordHash, &u.TOTPSecret, &roles, &createdAt)
	if err != nil {
		return domain.User{}, err
	}

	if u.Roles, err = decodeList(roles); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.DisplayName,
		u.Email,
		u.PasswordHash,
		u.TOTPSecret,
		encodeList(u.Roles),
		toMillis(u.CreatedAt),
	)
	return mapInsert(err)
}
