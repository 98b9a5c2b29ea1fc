package wearer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/gagspeak/internal/gag"
)

// Schema is the DDL for the wearer_loadouts table. Apply it with
// [PostgresStore.Migrate] or during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS wearer_loadouts (
    wearer_id   TEXT PRIMARY KEY,
    gags        JSONB NOT NULL DEFAULT '[]',
    mouth_state TEXT NOT NULL DEFAULT 'none',
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the subset of *pgxpool.Pool and *pgx.Conn used by [PostgresStore].
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Gag names are stored as a
// JSONB array and the mouth state in its text form.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call [PostgresStore.Migrate]
// before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wearer_loadouts table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("wearer: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Loadout, error) {
	const query = `
		SELECT wearer_id, gags, mouth_state, updated_at
		FROM wearer_loadouts
		WHERE wearer_id = $1`

	var (
		l     Loadout
		gags  []byte
		mouth string
	)
	err := s.db.QueryRow(ctx, query, id).Scan(&l.WearerID, &gags, &mouth, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("wearer: get %q: %w", id, err)
	}
	if err := decodeColumns(&l, gags, mouth); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) Put(ctx context.Context, l *Loadout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	gags := l.Gags
	if gags == nil {
		gags = []string{}
	}
	gagsJSON, err := json.Marshal(gags)
	if err != nil {
		return fmt.Errorf("wearer: marshal gags: %w", err)
	}

	const query = `
		INSERT INTO wearer_loadouts (wearer_id, gags, mouth_state)
		VALUES ($1, $2, $3)
		ON CONFLICT (wearer_id) DO UPDATE SET
			gags = EXCLUDED.gags,
			mouth_state = EXCLUDED.mouth_state,
			updated_at = now()
		RETURNING updated_at`

	err = s.db.QueryRow(ctx, query, l.WearerID, gagsJSON, l.MouthState.String()).Scan(&l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("wearer: put %q: %w", l.WearerID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM wearer_loadouts WHERE wearer_id = $1`
	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("wearer: delete %q: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Loadout, error) {
	const query = `
		SELECT wearer_id, gags, mouth_state, updated_at
		FROM wearer_loadouts
		ORDER BY wearer_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("wearer: list: %w", err)
	}
	defer rows.Close()

	var out []Loadout
	for rows.Next() {
		var (
			l     Loadout
			gags  []byte
			mouth string
		)
		if err := rows.Scan(&l.WearerID, &gags, &mouth, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("wearer: list scan: %w", err)
		}
		if err := decodeColumns(&l, gags, mouth); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wearer: list: %w", err)
	}
	return out, nil
}

func decodeColumns(l *Loadout, gags []byte, mouth string) error {
	if err := json.Unmarshal(gags, &l.Gags); err != nil {
		return fmt.Errorf("wearer: unmarshal gags of %q: %w", l.WearerID, err)
	}
	m, err := gag.ParseMouthState(mouth)
	if err != nil {
		return fmt.Errorf("wearer: mouth_state of %q: %w", l.WearerID, err)
	}
	l.MouthState = m
	return nil
}
