package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/internal/auth/store/drivers/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testClient(id string) domain.Client {
	return domain.Client{
		ID:           id,
		DisplayName:  "Test client " + id,
		RedirectURIs: []string{"http://127.0.0.1:5500/callback.html"},
		Permissions:  []string{domain.PermTokenEndpoint, domain.GrantTypePermission(domain.GrantRefreshToken)},
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestClients_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := testClient("aurelia")
	require.NoError(t, s.Clients().CreateClient(ctx, c))

	got, err := s.Clients().GetClientByID(ctx, "aurelia")
	require.NoError(t, err)
	require.Equal(t, c, got)

	n, err := s.Clients().CountClients(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.Clients().GetClientByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestClients_DuplicateInsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Clients().CreateClient(ctx, testClient("aurelia")))
	err := s.Clients().CreateClient(ctx, testClient("aurelia"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	all, err := s.Clients().ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestScopes_CreateListDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	api1 := domain.Scope{Name: "api1", Resources: []string{"resource_server_1"}, CreatedAt: time.Now()}
	api2 := domain.Scope{Name: "api2", Resources: []string{"resource_server_2"}, Policy: "User", CreatedAt: time.Now()}
	require.NoError(t, s.Scopes().CreateScope(ctx, api2))
	require.NoError(t, s.Scopes().CreateScope(ctx, api1))
	require.ErrorIs(t, s.Scopes().CreateScope(ctx, api1), store.ErrAlreadyExists)

	got, err := s.Scopes().GetScopeByName(ctx, "api2")
	require.NoError(t, err)
	require.Equal(t, []string{"resource_server_2"}, got.Resources)
	require.Equal(t, "User", got.Policy)

	all, err := s.Scopes().ListScopes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "api1", all[0].Name)
}

func TestUsers_UniqueUsername(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := domain.User{ID: "u1", Username: "alice", Roles: []string{domain.RoleUser}, CreatedAt: time.Now()}
	require.NoError(t, s.Users().CreateUser(ctx, u))

	u.ID = "u2"
	require.ErrorIs(t, s.Users().CreateUser(ctx, u), store.ErrAlreadyExists)

	got, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", got.ID)
	require.Equal(t, []string{domain.RoleUser}, got.Roles)

	_, err = s.Users().GetUserByID(ctx, "u2")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuthorizationCodes_RedeemOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Clients().CreateClient(ctx, testClient("aurelia")))

	now := time.Now().UTC()
	code := domain.AuthorizationCode{
		ID:          "fp-1",
		ClientID:    "aurelia",
		Subject:     "alice",
		RedirectURI: "http://127.0.0.1:5500/callback.html",
		Scopes:      []string{"openid", "api1"},
		ExpiresAt:   now.Add(5 * time.Minute),
		CreatedAt:   now,
	}
	require.NoError(t, s.AuthorizationCodes().CreateAuthorizationCode(ctx, code))

	got, err := s.AuthorizationCodes().RedeemAuthorizationCode(ctx, "fp-1", now)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Subject)
	require.NotNil(t, got.RedeemedAt)

	_, err = s.AuthorizationCodes().RedeemAuthorizationCode(ctx, "fp-1", now)
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.AuthorizationCodes().RedeemAuthorizationCode(ctx, "unknown", now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuthorizationCodes_ExpiredIsConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Clients().CreateClient(ctx, testClient("aurelia")))

	now := time.Now().UTC()
	require.NoError(t, s.AuthorizationCodes().CreateAuthorizationCode(ctx, domain.AuthorizationCode{
		ID:        "fp-old",
		ClientID:  "aurelia",
		Subject:   "alice",
		ExpiresAt: now.Add(-time.Second),
		CreatedAt: now.Add(-time.Minute),
	}))

	_, err := s.AuthorizationCodes().RedeemAuthorizationCode(ctx, "fp-old", now)
	require.ErrorIs(t, err, store.ErrConflict)

	n, err := s.AuthorizationCodes().DeleteStaleAuthorizationCodes(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func refreshRecord(id string, now time.Time) domain.TokenRecord {
	return domain.TokenRecord{
		ID:        id,
		Kind:      domain.TokenKindRefresh,
		Subject:   "alice",
		ClientID:  "aurelia",
		Audience:  []string{"resource_server_1"},
		Scopes:    []string{"api1", "offline_access"},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestTokens_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.Tokens().CreateToken(ctx, refreshRecord("rt-1", now)))
	require.ErrorIs(t, s.Tokens().CreateToken(ctx, refreshRecord("rt-1", now)), store.ErrAlreadyExists)

	rec, err := s.Tokens().ConsumeToken(ctx, "rt-1", now)
	require.NoError(t, err)
	require.Equal(t, domain.TokenStatusValid, rec.Status)
	require.Equal(t, []string{"api1", "offline_access"}, rec.Scopes)

	_, err = s.Tokens().ConsumeToken(ctx, "rt-1", now)
	require.ErrorIs(t, err, store.ErrConflict)

	after, err := s.Tokens().GetToken(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, domain.TokenStatusRedeemed, after.Status)
	require.NotNil(t, after.RedeemedAt)

	_, err = s.Tokens().ConsumeToken(ctx, "rt-missing", now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokens_ConsumeExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.Tokens().CreateToken(ctx, refreshRecord("rt-1", now)))
	_, err := s.Tokens().ConsumeToken(ctx, "rt-1", now.Add(2*time.Hour))
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestTokens_ConcurrentConsumeExactlyOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.Tokens().CreateToken(ctx, refreshRecord("rt-race", now)))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Tokens().ConsumeToken(ctx, "rt-race", now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, conflicts)
}

func TestTokens_RevokeSubject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.Tokens().CreateToken(ctx, refreshRecord("rt-1", now)))
	require.NoError(t, s.Tokens().CreateToken(ctx, refreshRecord("rt-2", now)))
	other := refreshRecord("rt-3", now)
	other.ClientID = "someone-else"
	require.NoError(t, s.Tokens().CreateToken(ctx, other))

	n, err := s.Tokens().RevokeSubjectTokens(ctx, "alice", "aurelia")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = s.Tokens().ConsumeToken(ctx, "rt-1", now)
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = s.Tokens().ConsumeToken(ctx, "rt-3", now)
	require.NoError(t, err)

	require.ErrorIs(t, s.Tokens().RevokeToken(ctx, "nope"), store.ErrNotFound)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Clients().CreateClient(ctx, testClient("aurelia")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Clients().GetClientByID(ctx, "aurelia")
	require.ErrorIs(t, err, store.ErrNotFound)
}
