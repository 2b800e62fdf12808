// Package directory stores principals and the federated identity links bound to them.
//
// A principal is created on first successful login, local or federated, and its ID (a ULID)
// is never reused. A link binds (provider, subject) to one principal; the pair is globally
// unique and links are never mutated.
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goRenew/internal/dbx"
	"github.com/MrEthical07/goRenew/internal/ids"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound    = errors.New("directory: principal not found")
	ErrEmailTaken  = errors.New("directory: email already registered")
	ErrLinkExists  = errors.New("directory: federated identity already linked")
	ErrUnavailable = errors.New("directory: backend unavailable")
)

// Principal is an authenticated identity.
type Principal struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// FederatedLink binds an external provider subject to a principal.
type FederatedLink struct {
	Provider    string
	Subject     string
	PrincipalID string
	CreatedAt   time.Time
}

// Store is the SQL-backed principal directory.
type Store struct {
	db           *sql.DB
	dialect      dbx.Dialect
	defaultRoles []string
	now          func() time.Time
}

// New wraps db. defaultRoles are assigned to principals created by federated login.
func New(db *sql.DB, dialect dbx.Dialect, defaultRoles []string) *Store {
	return &Store{
		db:           db,
		dialect:      dialect,
		defaultRoles: defaultRoles,
		now:          time.Now,
	}
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// NormalizeEmail is the canonical form used for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeRoles(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	b, _ := json.Marshal(roles)
	return string(b)
}

func decodeRoles(s string) []string {
	if s == "" {
		return nil
	}
	var roles []string
	_ = json.Unmarshal([]byte(s), &roles)
	return roles
}

// CreatePrincipal inserts a local principal. passwordHash may be empty for federated-only
// principals.
func (s *Store) CreatePrincipal(ctx context.Context, email, passwordHash string, roles []string) (Principal, error) {
	return s.createPrincipal(ctx, s.db, email, passwordHash, roles)
}

func (s *Store) createPrincipal(ctx context.Context, db dbx.DBTX, email, passwordHash string, roles []string) (Principal, error) {
	p := Principal{
		ID:           ids.New(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Roles:        roles,
		CreatedAt:    s.now().Truncate(time.Millisecond),
	}
	_, err := db.ExecContext(ctx,
		s.q(`INSERT INTO principals (id, email, password_hash, roles, created_at) VALUES (?, ?, ?, ?, ?)`),
		p.ID, nullEmail(p.Email), p.PasswordHash, encodeRoles(p.Roles), p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Principal{}, ErrEmailTaken
		}
		return Principal{}, unavailable(err)
	}
	return p, nil
}

// Federated principals may lack an email; NULL keeps them out of the unique index.
func nullEmail(email string) sql.NullString {
	return sql.NullString{String: email, Valid: email != ""}
}

const principalColumns = `id, email, password_hash, roles, created_at`

func scanPrincipal(row *sql.Row) (Principal, error) {
	var (
		p         Principal
		email     sql.NullString
		roles     string
		createdAt int64
	)
	err := row.Scan(&p.ID, &email, &p.PasswordHash, &roles, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Principal{}, ErrNotFound
	}
	if err != nil {
		return Principal{}, unavailable(err)
	}
	p.Email = email.String
	p.Roles = decodeRoles(roles)
	p.CreatedAt = time.UnixMilli(createdAt)
	return p, nil
}

// PrincipalByID loads a principal by ID.
func (s *Store) PrincipalByID(ctx context.Context, id string) (Principal, error) {
	return s.principalByID(ctx, s.db, id)
}

func (s *Store) principalByID(ctx context.Context, db dbx.DBTX, id string) (Principal, error) {
	return scanPrincipal(db.QueryRowContext(ctx, s.q(`SELECT `+principalColumns+` FROM principals WHERE id = ?`), id))
}

// PrincipalByEmail loads a principal by normalized email.
func (s *Store) PrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	return s.principalByEmail(ctx, s.db, email)
}

func (s *Store) principalByEmail(ctx context.Context, db dbx.DBTX, email string) (Principal, error) {
	return scanPrincipal(db.QueryRowContext(ctx, s.q(`SELECT `+principalColumns+` FROM principals WHERE email = ?`), NormalizeEmail(email)))
}

// UpdatePasswordHash replaces the stored hash, used for transparent parameter upgrades.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE principals SET password_hash = ? WHERE id = ?`), passwordHash, id)
	if err != nil {
		return unavailable(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkByProviderSubject returns the link for (provider, subject), or ErrNotFound.
func (s *Store) LinkByProviderSubject(ctx context.Context, provider, subject string) (FederatedLink, error) {
	l := FederatedLink{Provider: provider, Subject: subject}
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT principal_id, created_at FROM federated_links WHERE provider = ? AND subject = ?`),
		provider, subject,
	).Scan(&l.PrincipalID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return FederatedLink{}, ErrNotFound
	}
	if err != nil {
		return FederatedLink{}, unavailable(err)
	}
	l.CreatedAt = time.UnixMilli(createdAt)
	return l, nil
}

// CreateLink binds (provider, subject) to an existing principal. Links are immutable, so an
// existing pair yields ErrLinkExists even when it points at the same principal.
func (s *Store) CreateLink(ctx context.Context, provider, subject, principalID string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO federated_links (provider, subject, principal_id, created_at) VALUES (?, ?, ?, ?)`),
		provider, subject, principalID, s.now().UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLinkExists
		}
		return unavailable(err)
	}
	return nil
}

// LinksForPrincipal lists every federated link of a principal.
func (s *Store) LinksForPrincipal(ctx context.Context, principalID string) ([]FederatedLink, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT provider, subject, principal_id, created_at FROM federated_links WHERE principal_id = ? ORDER BY created_at, provider`),
		principalID,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []FederatedLink
	for rows.Next() {
		var (
			l         FederatedLink
			createdAt int64
		)
		if err := rows.Scan(&l.Provider, &l.Subject, &l.PrincipalID, &createdAt); err != nil {
			return nil, unavailable(err)
		}
		l.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// ResolveFederated returns the principal linked to (provider, subject). On first login it
// creates the principal and the link in one transaction. When linkByEmail is set and a
// principal with the asserted email exists, the link is attached to it instead; callers
// must only set it for provider-verified emails.
func (s *Store) ResolveFederated(ctx context.Context, provider, subject, email string, linkByEmail bool) (Principal, bool, error) {
	p, created, err := s.resolveFederated(ctx, provider, subject, email, linkByEmail)
	if err != nil && isUniqueViolation(err) {
		// A concurrent first login created the link; the retry finds it.
		p, created, err = s.resolveFederated(ctx, provider, subject, email, linkByEmail)
	}
	if err != nil && !errors.Is(err, ErrEmailTaken) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUnavailable) {
		err = unavailable(err)
	}
	return p, created, err
}

func (s *Store) resolveFederated(ctx context.Context, provider, subject, email string, linkByEmail bool) (Principal, bool, error) {
	var (
		out     Principal
		created bool
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var principalID string
		err := tx.QueryRowContext(ctx,
			s.q(`SELECT principal_id FROM federated_links WHERE provider = ? AND subject = ?`),
			provider, subject,
		).Scan(&principalID)
		switch {
		case err == nil:
			p, err := s.principalByID(ctx, tx, principalID)
			out = p
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		var p Principal
		if linkByEmail && email != "" {
			p, err = s.principalByEmail(ctx, tx, email)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		if p.ID == "" {
			p, err = s.createPrincipal(ctx, tx, email, "", s.defaultRoles)
			if err != nil {
				return err
			}
			created = true
		}

		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO federated_links (provider, subject, principal_id, created_at) VALUES (?, ?, ?, ?)`),
			provider, subject, p.ID, s.now().UnixMilli(),
		)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Principal{}, false, err
	}
	return out, created, nil
}
