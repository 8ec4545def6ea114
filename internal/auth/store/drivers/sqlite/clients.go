package sqlite

import (
	"context"

	"github.com/truecredit/authserver/internal/auth/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, secret_hash, display_name, redirect_uris, post_logout_redirect_uris, permissions, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (domain.Client, error) {
	var c domain.Client
	var redirects, postLogout, perms string
	var createdAt int64
	if err := row.Scan(&c.ID, &c.SecretHash, &c.DisplayName, &redirects, &postLogout, &perms, &createdAt); err != nil {
		return domain.Client{}, err
	}

	var err error
	if c.RedirectURIs, err = decodeList(redirects); err != nil {
		return domain.Client{}, err
	}
	if c.PostLogoutRedirectURIs, err = decodeList(postLogout); err != nil {
		return domain.Client{}, err
	}
	if c.Permissions, err = decodeList(perms); err != nil {
		return domain.Client{}, err
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	c, err := scanClient(r.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.SecretHash,
		c.DisplayName,
		encodeList(c.RedirectURIs),
		encodeList(c.PostLogoutRedirectURIs),
		encodeList(c.Permissions),
		toMillis(c.CreatedAt),
	)
	return mapInsert(err)
}

func (r *clientsRepo) CountClients(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&n)
	return n, err
}
