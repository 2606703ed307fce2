package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/captchaocr/internal/store"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("captcha_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	// Running twice must be a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func TestPostgres_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Create(ctx, id, models.NewProcessingRecord()))

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, rec.Status)
	assert.Nil(t, rec.Result)

	err = s.Create(ctx, id, models.NewProcessingRecord())
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestPostgres_GetUnknown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	_, err := s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgres_Update(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, s.Create(ctx, id, models.NewProcessingRecord()))

	ok, err := s.Update(ctx, id, func(rec *models.JobRecord) { rec.Complete("HELLO") })
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "HELLO", rec.ResultText())

	ok, err = s.Update(ctx, uuid.NewString(), func(rec *models.JobRecord) { rec.Fail("x") })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgres_ConcurrentUpdatesSerialize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, s.Create(ctx, id, models.NewProcessingRecord()))

	// Only the first writer sees processing; the rest must observe its terminal state.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, id, func(rec *models.JobRecord) {
				if rec.Status == models.StatusProcessing {
					rec.Complete("first")
					mu.Lock()
					applied++
					mu.Unlock()
				}
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first", rec.ResultText())
}
