package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/captchaocr/internal/config"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

// Connect opens a pgx pool for the postgres backend and verifies connectivity.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// PostgresStore implements Store on a captcha_jobs table. Row locks take the
// place of FileStore's mutex, so several server processes may share one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Create(ctx context.Context, id string, rec models.JobRecord) error {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("create job: invalid id %q: %w", id, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO captcha_jobs (id, status, result, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())`,
		jobID, string(rec.Status), rec.Result)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn UpdateFunc) (bool, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status string
		rec    models.JobRecord
	)
	err = tx.QueryRow(ctx,
		`SELECT status, result FROM captcha_jobs WHERE id = $1 FOR UPDATE`, jobID,
	).Scan(&status, &rec.Result)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock job: %w", err)
	}
	rec.Status = models.Status(status)

	fn(&rec)

	if _, err := tx.Exec(ctx,
		`UPDATE captcha_jobs SET status = $2, result = $3, updated_at = NOW() WHERE id = $1`,
		jobID, string(rec.Status), rec.Result); err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (models.JobRecord, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return models.JobRecord{}, ErrNotFound
	}

	var (
		status string
		rec    models.JobRecord
	)
	err = s.pool.QueryRow(ctx,
		`SELECT status, result FROM captcha_jobs WHERE id = $1`, jobID,
	).Scan(&status, &rec.Result)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.JobRecord{}, ErrNotFound
	}
	if err != nil {
		return models.JobRecord{}, fmt.Errorf("get job: %w", err)
	}
	rec.Status = models.Status(status)
	if !validRecord(rec) {
		return models.JobRecord{}, fmt.Errorf("%w: job %s has unknown status %q", ErrCorruptStore, id, status)
	}
	return rec, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
