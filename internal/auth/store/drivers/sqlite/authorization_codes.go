package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/store"
)

type authorizationCodesRepo struct {
	db dbtx
}

const authorizationCodeColumns = `id, client_id, subject, redirect_uri, scopes, nonce, code_challenge,
	code_challenge_method, expires_at, redeemed_at, created_at`

func scanAuthorizationCode(row rowScanner) (domain.AuthorizationCode, error) {
	var c domain.AuthorizationCode
	var scopes string
	var expiresAt, createdAt int64
	var redeemedAt sql.NullInt64
	err := row.Scan(&c.ID, &c.ClientID, &c.Subject, &c.RedirectURI, &scopes, &c.Nonce, &c.CodeChallenge,
		&c.CodeChallengeMethod, &expiresAt, &redeemedAt, &createdAt)
	if err != nil {
		return domain.AuthorizationCode{}, err
	}

	if c.Scopes, err = decodeList(scopes); err != nil {
		return domain.AuthorizationCode{}, err
	}
	c.ExpiresAt = fromMillis(expiresAt)
	c.RedeemedAt = fromNullMillis(redeemedAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, c domain.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO authorization_codes (`+authorizationCodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		c.ID,
		c.ClientID,
		c.Subject,
		c.RedirectURI,
		encodeList(c.Scopes),
		c.Nonce,
		c.CodeChallenge,
		c.CodeChallengeMethod,
		toMillis(c.ExpiresAt),
		toMillis(c.CreatedAt),
	)
	return mapInsert(err)
}

func (r *authorizationCodesRepo) GetAuthorizationCode(ctx context.Context, id string) (domain.AuthorizationCode, error) {
	c, err := scanAuthorizationCode(r.db.QueryRowContext(ctx,
		`SELECT `+authorizationCodeColumns+` FROM authorization_codes WHERE id = ?`, id))
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	return c, nil
}

func (r *authorizationCodesRepo) RedeemAuthorizationCode(ctx context.Context, id string, now time.Time) (domain.AuthorizationCode, error) {
	c, err := scanAuthorizationCode(r.db.QueryRowContext(ctx, `
		UPDATE authorization_codes
		SET redeemed_at = ?
		WHERE id = ? AND redeemed_at IS NULL AND expires_at > ?
		RETURNING `+authorizationCodeColumns,
		toMillis(now), id, toMillis(now),
	))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.AuthorizationCode{}, err
	}

	if _, err := r.GetAuthorizationCode(ctx, id); err != nil {
		return domain.AuthorizationCode{}, err
	}
	return domain.AuthorizationCode{}, store.ErrConflict
}

func (r *authorizationCodesRepo) DeleteStaleAuthorizationCodes(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < ? OR redeemed_at < ?`,
		toMillis(cutoff), toMillis(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
