package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashahealth/mediwagon/internal/observability"
	"github.com/ashahealth/mediwagon/internal/reliability"
)

const pingAttempts = 4

// PostgresStorage keeps the identity in PostgreSQL, scoped by profile so
// several installs can share one database.
type PostgresStorage struct {
	pool    *pgxpool.Pool
	profile string
}

func NewPostgresStorage(ctx context.Context, databaseURL, profile string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pingWithBackoff(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if profile == "" {
		profile = "default"
	}
	return &PostgresStorage{pool: pool, profile: profile}, nil
}

func pingWithBackoff(ctx context.Context, pool *pgxpool.Pool) error {
	var err error
	for attempt := 0; attempt < pingAttempts; attempt++ {
		if err = pool.Ping(ctx); err == nil {
			return nil
		}
		wait := reliability.ExponentialBackoff(attempt, 250*time.Millisecond, 2*time.Second)
		observability.LoggerFromContext(ctx).Warn("postgres not ready", "attempt", attempt+1, "retry_in", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("ping postgres: %w", err)
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS mediwagon_identity (
		profile TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (profile, key)
	)`)
	if err != nil {
		return fmt.Errorf("init identity schema: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM mediwagon_identity WHERE profile=$1 AND key=$2`,
		s.profile, key,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

func (s *PostgresStorage) Put(ctx context.Context, values map[string]string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for k, v := range values {
			if _, err := tx.Exec(ctx,
				`INSERT INTO mediwagon_identity (profile, key, value, updated_at)
				 VALUES ($1, $2, $3, now())
				 ON CONFLICT (profile, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
				s.profile, k, v,
			); err != nil {
				return fmt.Errorf("write %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *PostgresStorage) Delete(ctx context.Context, keys ...string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM mediwagon_identity WHERE profile=$1 AND key = ANY($2)`,
		s.profile, keys,
	)
	if err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
