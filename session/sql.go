package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/goRenew/internal/dbx"
	"github.com/MrEthical07/goRenew/internal/ids"
	"github.com/MrEthical07/goRenew/internal/migrations"
)

// SQLStore keeps sessions in the `sessions` and `refresh_tokens` tables. Times are unix
// milliseconds.
type SQLStore struct {
	db      *sql.DB
	dialect dbx.Dialect
	opts    options
}

// NewSQLStore wraps an open database. Call Migrate before first use unless the schema is
// managed elsewhere.
func NewSQLStore(db *sql.DB, dialect dbx.Dialect, opts ...Option) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		opts:    buildOptions(opts),
	}
}

// Migrate applies the embedded schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, s.db, s.dialect)
}

func (s *SQLStore) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *SQLStore) CreateSession(ctx context.Context, principalID string, roles []string) (string, error) {
	sid, err := ids.NewSessionID()
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO sessions (id, principal_id, roles, created_at) VALUES (?, ?, ?, ?)`),
		sid.String(), principalID, encodeRoles(roles), s.opts.now().UnixMilli(),
	)
	if err != nil {
		return "", unavailable(err)
	}
	return sid.String(), nil
}

func (s *SQLStore) RecordRefreshToken(ctx context.Context, sessionID, tokenID string, expiresAt time.Time) error {
	now := s.opts.now().UnixMilli()
	var outcome error

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			s.q(`UPDATE sessions SET current_token_id = ?, refresh_expires_at = ? WHERE id = ? AND revoked_at IS NULL`),
			tokenID, expiresAt.UnixMilli(), sessionID,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			var revokedAt sql.NullInt64
			err := tx.QueryRowContext(ctx, s.q(`SELECT revoked_at FROM sessions WHERE id = ?`), sessionID).Scan(&revokedAt)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				outcome = ErrSessionNotFound
			case err != nil:
				return err
			default:
				outcome = ErrRevoked
			}
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			s.q(`UPDATE refresh_tokens SET state = ? WHERE session_id = ? AND state IN (?, ?)`),
			string(StateRotated), sessionID, string(StateCurrent), string(StateConsumed),
		); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO refresh_tokens (token_id, session_id, state, issued_at, expires_at) VALUES (?, ?, ?, ?, ?)`),
			tokenID, sessionID, string(StateCurrent), now, expiresAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return unavailable(err)
	}
	return outcome
}

func (s *SQLStore) ConsumeRefreshToken(ctx context.Context, tokenID string) (Consumed, error) {
	now := s.opts.now().UnixMilli()
	out := Consumed{TokenID: tokenID}
	var outcome error

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var (
			state     string
			expiresAt int64
			roles     string
			revokedAt sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, s.q(`
			SELECT t.session_id, t.state, t.expires_at, s.principal_id, s.roles, s.revoked_at
			FROM refresh_tokens t
			JOIN sessions s ON s.id = t.session_id
			WHERE t.token_id = ?`), tokenID,
		).Scan(&out.SessionID, &state, &expiresAt, &out.PrincipalID, &roles, &revokedAt)
		if errors.Is(err, sql.ErrNoRows) {
			outcome = ErrNotFound
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case revokedAt.Valid:
			outcome = ErrRevoked
			return nil
		case State(state) == StateRotated:
			outcome = ErrReused
			return s.revokeTx(ctx, tx, out.SessionID, ReasonReuse, now)
		case State(state) != StateCurrent:
			outcome = ErrAlreadyConsumed
			return nil
		case expiresAt <= now:
			outcome = ErrExpired
			return nil
		}

		res, err := tx.ExecContext(ctx,
			s.q(`UPDATE refresh_tokens SET state = ? WHERE token_id = ? AND state = ?`),
			string(StateConsumed), tokenID, string(StateCurrent),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			outcome = ErrAlreadyConsumed
			return nil
		}
		out.Roles = decodeRoles(roles)
		return nil
	})
	if err != nil {
		return Consumed{}, unavailable(err)
	}
	if outcome != nil {
		out.Roles = nil
		if errors.Is(outcome, ErrNotFound) {
			return Consumed{}, outcome
		}
	}
	return out, outcome
}

func (s *SQLStore) revokeTx(ctx context.Context, tx dbx.DBTX, sessionID, reason string, now int64) error {
	res, err := tx.ExecContext(ctx,
		s.q(`UPDATE sessions SET revoked_at = ?, revoke_reason = ? WHERE id = ? AND revoked_at IS NULL`),
		now, reason, sessionID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return err
	}
	_, err = tx.ExecContext(ctx,
		s.q(`UPDATE refresh_tokens SET state = ? WHERE session_id = ? AND state = ?`),
		string(StateRevoked), sessionID, string(StateCurrent),
	)
	return err
}

func (s *SQLStore) RevokeSession(ctx context.Context, sessionID string) error {
	now := s.opts.now().UnixMilli()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.revokeTx(ctx, tx, sessionID, ReasonLogout, now)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *SQLStore) IsSessionValid(ctx context.Context, sessionID string) (bool, error) {
	var revokedAt, refreshExpiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT revoked_at, refresh_expires_at FROM sessions WHERE id = ?`), sessionID,
	).Scan(&revokedAt, &refreshExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	if revokedAt.Valid {
		return false, nil
	}
	if refreshExpiresAt.Valid && refreshExpiresAt.Int64 <= s.opts.now().UnixMilli() {
		return false, nil
	}
	return true, nil
}

const sessionColumns = `id, principal_id, roles, created_at, current_token_id, refresh_expires_at, revoked_at, revoke_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess      Session
		roles     string
		createdAt int64
		current   sql.NullString
		refreshAt sql.NullInt64
		revokedAt sql.NullInt64
		reason    sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.PrincipalID, &roles, &createdAt, &current, &refreshAt, &revokedAt, &reason); err != nil {
		return Session{}, err
	}
	sess.Roles = decodeRoles(roles)
	sess.CreatedAt = fromMillis(createdAt)
	sess.CurrentTokenID = current.String
	sess.RefreshExpiresAt = fromMillis(refreshAt.Int64)
	sess.RevokedAt = fromMillis(revokedAt.Int64)
	sess.RevokeReason = reason.String
	return sess, nil
}

func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`), sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &sess, nil
}

func (s *SQLStore) ListSessions(ctx context.Context, principalID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+sessionColumns+` FROM sessions WHERE principal_id = ? AND revoked_at IS NULL ORDER BY created_at`),
		principalID,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *SQLStore) Lineage(ctx context.Context, sessionID string) ([]RefreshRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT token_id, session_id, state, issued_at, expires_at FROM refresh_tokens WHERE session_id = ? ORDER BY issued_at, token_id`),
		sessionID,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []RefreshRecord
	for rows.Next() {
		var (
			rec       RefreshRecord
			state     string
			issuedAt  int64
			expiresAt int64
		)
		if err := rows.Scan(&rec.TokenID, &rec.SessionID, &state, &issuedAt, &expiresAt); err != nil {
			return nil, unavailable(err)
		}
		rec.State = State(state)
		rec.IssuedAt = fromMillis(issuedAt)
		rec.ExpiresAt = fromMillis(expiresAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Ping checks that the database answers.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}
