package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/store"
)

type tokensRepo struct {
	db dbtx
}

const tokenColumns = `id, kind, subject, client_id, audience, scopes, status, issued_at, expires_at, redeemed_at`

func scanToken(row rowScanner) (domain.TokenRecord, error) {
	var t domain.TokenRecord
	var kind, status, audience, scopes string
	var issuedAt, expiresAt int64
	var redeemedAt sql.NullInt64
	err := row.Scan(&t.ID, &kind, &t.Subject, &t.ClientID, &audience, &scopes, &status, &issuedAt, &expiresAt, &redeemedAt)
	if err != nil {
		return domain.TokenRecord{}, err
	}

	if t.Audience, err = decodeList(audience); err != nil {
		return domain.TokenRecord{}, err
	}
	if t.Scopes, err = decodeList(scopes); err != nil {
		return domain.TokenRecord{}, err
	}
	t.Kind = domain.TokenKind(kind)
	t.Status = domain.TokenStatus(status)
	t.IssuedAt = fromMillis(issuedAt)
	t.ExpiresAt = fromMillis(expiresAt)
	t.RedeemedAt = fromNullMillis(redeemedAt)
	return t, nil
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.TokenRecord) error {
	status := t.Status
	if status == "" {
		status = domain.TokenStatusValid
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		t.ID,
		string(t.Kind),
		t.Subject,
		t.ClientID,
		encodeList(t.Audience),
		encodeList(t.Scopes),
		string(status),
		toMillis(t.IssuedAt),
		toMillis(t.ExpiresAt),
	)
	return mapInsert(err)
}

func (r *tokensRepo) GetToken(ctx context.Context, id string) (domain.TokenRecord, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = ?`, id))
	if err != nil {
		return domain.TokenRecord{}, mapNotFound(err)
	}
	return t, nil
}

// ConsumeToken relies on the conditional UPDATE matching at most one row:
// a concurrent second caller sees status already flipped and matches nothing.
func (r *tokensRepo) ConsumeToken(ctx context.Context, id string, now time.Time) (domain.TokenRecord, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `
		UPDATE tokens
		SET status = 'redeemed', redeemed_at = ?
		WHERE id = ? AND status = 'valid' AND expires_at > ?
		RETURNING `+tokenColumns,
		toMillis(now), id, toMillis(now),
	))
	if err == nil {
		// RETURNING yields the updated row; report the pre-update state.
		t.Status = domain.TokenStatusValid
		t.RedeemedAt = nil
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.TokenRecord{}, err
	}

	if _, err := r.GetToken(ctx, id); err != nil {
		return domain.TokenRecord{}, err
	}
	return domain.TokenRecord{}, store.ErrConflict
}

func (r *tokensRepo) RevokeToken(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tokens SET status = 'revoked' WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *tokensRepo) RevokeSubjectTokens(ctx context.Context, subject, clientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tokens SET status = 'revoked' WHERE subject = ? AND client_id = ? AND status = 'valid'`,
		subject, clientID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *tokensRepo) DeleteStaleTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
