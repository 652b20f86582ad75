package tomikal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

type DbConn interface {
	Exec(ctx context.Context, sql string, optionsAndArgs ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...interface{}) pgx.Row
}

// PostgresStore keeps session entries in the session_entry table. SessionID separates the
// sessions of different devices sharing one database.
type PostgresStore struct {
	Conn      DbConn
	SessionID string
}

// Migrate brings the session schema up to date.
func Migrate(postgresUrl string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("unable to open migrations: %w", err)
	}

	mig, err := migrate.NewWithSourceInstance("iofs", source, postgresUrl)
	if err != nil {
		return fmt.Errorf("unable to prepare migrations: %w", err)
	}
	defer mig.Close()

	err = mig.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("unable to run migrations: %w", err)
	}

	return nil
}

// OpenPostgresStore migrates the database and connects a pool to it.
func OpenPostgresStore(ctx context.Context, postgresUrl, sessionID string) (*PostgresStore, *pgxpool.Pool, error) {
	if err := Migrate(postgresUrl); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.Connect(ctx, postgresUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	log.Println("[SESSION] postgres connection established")

	return &PostgresStore{Conn: pool, SessionID: sessionID}, pool, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.Conn.QueryRow(ctx, `
		SELECT value FROM session_entry
		WHERE session_id = $1
			AND key = $2
		LIMIT 1;
		`,
		p.SessionID,
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("unable to get session entry %s: %w", key, err)
	}

	return value, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := p.Conn.Exec(ctx, `
		INSERT INTO session_entry (session_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, key)
		DO UPDATE
			SET value = $3,
				updated_at = timezone('utc', NOW());
		`,
		p.SessionID,
		key,
		value,
	)
	if err != nil {
		return fmt.Errorf("unable to save session entry %s: %w", key, err)
	}

	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	_, err := p.Conn.Exec(ctx, `
		DELETE FROM session_entry
		WHERE session_id = $1
			AND key = ANY($2);
		`,
		p.SessionID,
		keys,
	)
	if err != nil {
		return fmt.Errorf("unable to delete session entries: %w", err)
	}

	return nil
}
