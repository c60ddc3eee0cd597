package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// err1062 mimics the driver's duplicate-key message for the ledger's
// unique token_hash index.
var err1062 = errors.New("Error 1062 (23000): Duplicate entry 'abc' for key 'uq_ledger_token_hash'")

func newTokenRepoMock(t *testing.T) (*TokenRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTokenRepo(db), mock
}

func TestStoreRefreshDuplicateHash(t *testing.T) {
	repo, mock := newTokenRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WithArgs(uint64(1), "hash", sqlmock.AnyArg()).
		WillReturnError(err1062)

	err := repo.StoreRefresh(context.Background(), 1, "hash", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrDuplicateToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRefreshOtherErrorPassesThrough(t *testing.T) {
	repo, mock := newTokenRepoMock(t)

	dbDown := errors.New("driver: bad connection")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WithArgs(uint64(1), "hash", sqlmock.AnyArg()).
		WillReturnError(dbDown)

	err := repo.StoreRefresh(context.Background(), 1, "hash", time.Now().Add(time.Hour))
	assert.NotErrorIs(t, err, ErrDuplicateToken)
	assert.ErrorIs(t, err, dbDown)
}

func TestBlacklistConsumesOutstandingRow(t *testing.T) {
	repo, mock := newTokenRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_entries SET revoked_at")).
		WithArgs("hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	first, err := repo.Blacklist(context.Background(), 1, "hash", "refresh", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, first)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBlacklistInsertRaceLosesQuietly(t *testing.T) {
	repo, mock := newTokenRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_entries SET revoked_at")).
		WithArgs("hash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM ledger_entries")).
		WithArgs("hash").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WithArgs(uint64(1), "hash", "access", sqlmock.AnyArg()).
		WillReturnError(err1062)

	first, err := repo.Blacklist(context.Background(), 1, "hash", "access", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, first)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateKeyMapping(t *testing.T) {
	assert.True(t, isDuplicateKey(err1062))
	assert.False(t, isDuplicateKey(errors.New("Error 1452 (23000): foreign key fails")))
	assert.False(t, isDuplicateKey(nil))

	assert.ErrorIs(t, mapDuplicate(errors.New("Error 1062: Duplicate entry 'bob' for key 'username'")), ErrUsernameExists)
	assert.ErrorIs(t, mapDuplicate(errors.New("Error 1062: Duplicate entry 'b@x.io' for key 'email'")), ErrEmailExists)
	assert.NoError(t, mapDuplicate(nil))
}
