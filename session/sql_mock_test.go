package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/goRenew/internal/dbx"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, dialect dbx.Dialect) (*SQLStore, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	now := time.UnixMilli(1_700_000_000_000)
	return NewSQLStore(db, dialect, WithClock(func() time.Time { return now })), mock, now
}

func TestSQLConsumeUsesConditionalUpdateOnPostgres(t *testing.T) {
	store, mock, now := newMockStore(t, dbx.Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE t.token_id = $1`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "state", "expires_at", "principal_id", "roles", "revoked_at"}).
			AddRow("s1", "current", now.Add(time.Hour).UnixMilli(), "p1", `["user"]`, nil))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET state = $1 WHERE token_id = $2 AND state = $3`)).
		WithArgs("consumed", "t1", "current").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, err := store.ConsumeRefreshToken(context.Background(), "t1")
	require.ErrorIs(t, err, ErrAlreadyConsumed, "zero affected rows means another caller won")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConsumeReuseRevokesInSameTransaction(t *testing.T) {
	store, mock, now := newMockStore(t, dbx.Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT t.session_id`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "state", "expires_at", "principal_id", "roles", "revoked_at"}).
			AddRow("s1", "rotated", now.Add(time.Hour).UnixMilli(), "p1", "", nil))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET revoked_at = $1, revoke_reason = $2 WHERE id = $3 AND revoked_at IS NULL`)).
		WithArgs(now.UnixMilli(), ReasonReuse, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET state`).
		WithArgs("revoked", "s1", "current").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := store.ConsumeRefreshToken(context.Background(), "t1")
	require.ErrorIs(t, err, ErrReused)
	require.Equal(t, "s1", got.SessionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendErrorsAreWrapped(t *testing.T) {
	store, mock, _ := newMockStore(t, dbx.SQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT t.session_id`).WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	_, err := store.ConsumeRefreshToken(context.Background(), "t1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Regexp(t, regexp.MustCompile(`backend unavailable: conn reset`), err.Error())

	mock.ExpectQuery(`SELECT revoked_at, refresh_expires_at FROM sessions`).WillReturnError(errors.New("down"))
	_, err = store.IsSessionValid(context.Background(), "s1")
	require.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecordOnRevokedSession(t *testing.T) {
	store, mock, now := newMockStore(t, dbx.SQLite)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET current_token_id = ?`)).
		WithArgs("t2", now.Add(time.Hour).UnixMilli(), "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT revoked_at FROM sessions WHERE id = ?`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"revoked_at"}).AddRow(now.UnixMilli()))
	mock.ExpectCommit()

	err := store.RecordRefreshToken(context.Background(), "s1", "t2", now.Add(time.Hour))
	require.ErrorIs(t, err, ErrRevoked)
	require.NoError(t, mock.ExpectationsWereMet())
}
