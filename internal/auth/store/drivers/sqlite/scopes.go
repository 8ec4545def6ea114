package sqlite

import (
	"context"

	"github.com/truecredit/authserver/internal/auth/domain"
)

type scopesRepo struct {
	db dbtx
}

const scopeColumns = `name, display_name, resources, policy, created_at`

func scanScope(row rowScanner) (domain.Scope, error) {
	var s domain.Scope
	var resources string
	var createdAt int64
	if err := row.Scan(&s.Name, &s.DisplayName, &resources, &s.Policy, &createdAt); err != nil {
		return domain.Scope{}, err
	}

	var err error
	if s.Resources, err = decodeList(resources); err != nil {
		return domain.Scope{}, err
	}
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (r *scopesRepo) GetScopeByName(ctx context.Context, name string) (domain.Scope, error) {
	s, err := scanScope(r.db.QueryRowContext(ctx, `SELECT `+scopeColumns+` FROM scopes WHERE name = ?`, name))
	if err != nil {
		return domain.Scope{}, mapNotFound(err)
	}
	return s, nil
}

func (r *scopesRepo) ListScopes(ctx context.Context) ([]domain.Scope, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scopeColumns+` FROM scopes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Scope
	for rows.Next() {
		s, err := scanScope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *scopesRepo) CreateScope(ctx context.Context, s domain.Scope) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scopes (`+scopeColumns+`) VALUES (?, ?, ?, ?, ?)`,
		s.Name, s.DisplayName, encodeList(s.Resources), s.Policy, toMillis(s.CreatedAt),
	)
	return mapInsert(err)
}
