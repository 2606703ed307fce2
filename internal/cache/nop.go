package cache

import (
	"context"
	"time"

	"github.com/kiranshivaraju/captchaocr/pkg/models"
)

// Nop is used when REDIS_URL is unset. Every lookup misses.
type Nop struct{}

func (Nop) Ping(_ context.Context) error { return nil }
func (Nop) Close() error                 { return nil }

func (Nop) SetRecord(_ context.Context, _ string, _ models.JobRecord, _ time.Duration) error {
	return nil
}

func (Nop) GetRecord(_ context.Context, _ string) (models.JobRecord, bool, error) {
	return models.JobRecord{}, false, nil
}

var _ Cache = Nop{}
