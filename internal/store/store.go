package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrDuplicateKey = errors.New("duplicate job id")
	ErrCorruptStore = errors.New("job store is corrupt")
)

// UpdateFunc mutates a job record inside an atomic load-mutate-save unit.
type UpdateFunc func(rec *models.JobRecord)

// Store is the job persistence interface. Every method is one atomic unit;
// callers never see a raw load or save, so they cannot forget to hold the
// lock across both.
type Store interface {
	Ping(ctx context.Context) error

	// Create inserts a new record. Returns ErrDuplicateKey if id is taken.
	Create(ctx context.Context, id string, rec models.JobRecord) error
	// Update applies fn to the record for id and persists the result.
	// It reports false with a nil error when id is not present.
	Update(ctx context.Context, id string, fn UpdateFunc) (bool, error)
	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id string) (models.JobRecord, error)
}

func validRecord(rec models.JobRecord) bool {
	switch rec.Status {
	case models.StatusProcessing, models.StatusCompleted, models.StatusError:
		return true
	}
	return false
}
