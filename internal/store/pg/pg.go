// Package pg implements the account store on PostgreSQL via pgx.
//
// User records are stored as a row with jsonb columns for last_login and
// logins (the embedded per-provider records). A side table user_logins
// keeps a uniqueness constraint on login external ids, which is what turns
// a concurrent first registration into account.ErrDuplicate instead of a
// silent duplicate account.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jxmono/login-providers/internal/account"
)

const uniqueViolation = "23505"

type Store struct{ pool *pgxpool.Pool }

type Config struct {
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

// New opens a pgx pool against dsn and pings it.
func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

const selectUser = `SELECT id::text, email, last_login, logins, projects FROM users`

func (s *Store) FindByLoginExternalID(ctx context.Context, externalID string) (*account.UserRecord, error) {
	row := s.pool.QueryRow(ctx, selectUser+`
		WHERE id = (SELECT user_id FROM user_logins WHERE external_id = $1)`, externalID)
	return scanUser(row)
}

func (s *Store) FindByLoginEmail(ctx context.Context, email string) (*account.UserRecord, error) {
	match, err := json.Marshal([]map[string]string{{"email": email}})
	if err != nil {
		return nil, fmt.Errorf("pg: marshal email match: %w", err)
	}
	row := s.pool.QueryRow(ctx, selectUser+` WHERE logins @> $1 LIMIT 1`, match)
	return scanUser(row)
}

func (s *Store) UpdateLogins(ctx context.Context, id string, last account.LastLogin, logins []account.LoginRecord) (*account.UserRecord, error) {
	lastJSON, loginsJSON, err := marshalLogin(last, logins)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE users SET last_login = $2, logins = $3, updated_at = now()
		WHERE id = $1
		RETURNING id::text, email, last_login, logins, projects`, id, lastJSON, loginsJSON)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, account.ErrNotFound
	}

	// Refresh the uniqueness side table for this user.
	if _, err := tx.Exec(ctx, `DELETE FROM user_logins WHERE user_id = $1`, id); err != nil {
		return nil, fmt.Errorf("pg: clear login index: %w", err)
	}
	for _, l := range logins {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_logins (external_id, user_id) VALUES ($1, $2)
			ON CONFLICT (external_id) DO NOTHING`, l.ExternalID, id); err != nil {
			return nil, fmt.Errorf("pg: index login: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pg: commit: %w", err)
	}
	return user, nil
}

func (s *Store) Insert(ctx context.Context, user *account.UserRecord) (*account.UserRecord, error) {
	lastJSON, loginsJSON, err := marshalLogin(user.LastLogin, user.Logins)
	if err != nil {
		return nil, err
	}
	projectsJSON, err := json.Marshal(projectsOrEmpty(user.Projects))
	if err != nil {
		return nil, fmt.Errorf("pg: marshal projects: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO users (email, last_login, logins, projects)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, email, last_login, logins, projects`,
		user.Email, lastJSON, loginsJSON, projectsJSON)
	stored, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	for _, l := range user.Logins {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_logins (external_id, user_id) VALUES ($1, $2)`,
			l.ExternalID, stored.ID); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, fmt.Errorf("%w: %s", account.ErrDuplicate, l.ExternalID)
			}
			return nil, fmt.Errorf("pg: index login: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pg: commit: %w", err)
	}
	return stored, nil
}

func marshalLogin(last account.LastLogin, logins []account.LoginRecord) ([]byte, []byte, error) {
	lastJSON, err := json.Marshal(last)
	if err != nil {
		return nil, nil, fmt.Errorf("pg: marshal last_login: %w", err)
	}
	loginsJSON, err := json.Marshal(logins)
	if err != nil {
		return nil, nil, fmt.Errorf("pg: marshal logins: %w", err)
	}
	return lastJSON, loginsJSON, nil
}

func projectsOrEmpty(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*account.UserRecord, error) {
	var (
		u                            account.UserRecord
		lastRaw, loginsRaw, projsRaw []byte
	)
	err := row.Scan(&u.ID, &u.Email, &lastRaw, &loginsRaw, &projsRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan user: %w", err)
	}
	if err := json.Unmarshal(lastRaw, &u.LastLogin); err != nil {
		return nil, fmt.Errorf("pg: unmarshal last_login: %w", err)
	}
	if err := json.Unmarshal(loginsRaw, &u.Logins); err != nil {
		return nil, fmt.Errorf("pg: unmarshal logins: %w", err)
	}
	if err := json.Unmarshal(projsRaw, &u.Projects); err != nil {
		return nil, fmt.Errorf("pg: unmarshal projects: %w", err)
	}
	return &u, nil
}
