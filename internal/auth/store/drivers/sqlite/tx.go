package sqlite

import (
	"context"
	"database/sql"

	"github.com/truecredit/authserver/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error                 { return nil }
func (t *txStore) Ping(_ context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(_ context.Context) (store.Tx, error) { return nil, sql.ErrTxDone }

func (t *txStore) WithTx(_ context.Context, _ func(tx store.Tx) error) error { return sql.ErrTxDone }

func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Clients() store.Clients                       { return &clientsRepo{db: t.tx} }
func (t *txStore) Scopes() store.Scopes                         { return &scopesRepo{db: t.tx} }
func (t *txStore) Users() store.Users                           { return &usersRepo{db: t.tx} }
func (t *txStore) AuthorizationCodes() store.AuthorizationCodes { return &authorizationCodesRepo{db: t.tx} }
func (t *txStore) Tokens() store.Tokens                         { return &tokensRepo{db: t.tx} }
