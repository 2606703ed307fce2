// Package jobs owns the lifecycle of an extraction job: it issues the id,
// records the job as processing, runs extraction in the background and writes
// exactly one terminal outcome back to the store.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captchaocr/internal/cache"
	"github.com/kiranshivaraju/captchaocr/internal/extract"
	"github.com/kiranshivaraju/captchaocr/internal/imaging"
	"github.com/kiranshivaraju/captchaocr/internal/store"
	"github.com/kiranshivaraju/captchaocr/pkg/models"
	"golang.org/x/sync/semaphore"
)

// ErrShuttingDown is returned by Submit once Shutdown has been called.
var ErrShuttingDown = errors.New("service is shutting down")

// Options tunes a Service. Zero values select the defaults noted per field.
type Options struct {
	// MaxConcurrent bounds in-flight extraction calls; 0 means unbounded.
	MaxConcurrent int
	// Timeout bounds one extraction call; 0 means no timeout.
	Timeout time.Duration
	// Instruction is sent with every image; empty uses models.DefaultInstruction.
	Instruction string
	// CacheTTL is how long terminal records stay in the cache.
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Service submits jobs and answers result queries.
type Service struct {
	store     store.Store
	cache     cache.Cache
	extractor models.Extractor
	sem       *semaphore.Weighted
	opts      Options
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// workCtx is cancelled when Shutdown gives up waiting, releasing blocked workers.
	workCtx    context.Context
	cancelWork context.CancelFunc
}

// NewService creates a Service. A nil cache disables caching.
func NewService(st store.Store, ca cache.Cache, ex models.Extractor, opts Options) *Service {
	if ca == nil {
		ca = cache.Nop{}
	}
	if opts.Instruction == "" {
		opts.Instruction = models.DefaultInstruction
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sem *semaphore.Weighted
	if opts.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}

	workCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      st,
		cache:      ca,
		extractor:  ex,
		sem:        sem,
		opts:       opts,
		logger:     logger,
		workCtx:    workCtx,
		cancelWork: cancel,
	}
}

// Submit records a new processing job for img and dispatches extraction in a
// background goroutine. It returns the job id once the record is persisted,
// without waiting for extraction.
func (s *Service) Submit(ctx context.Context, img image.Image, apiKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrShuttingDown
	}

	id := uuid.NewString()
	if err := s.store.Create(ctx, id, models.NewProcessingRecord()); err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}

	s.wg.Add(1)
	go s.run(id, img, apiKey)

	return id, nil
}

// Result returns the current record for id. Terminal records are served from
// the cache when present; everything else comes from the store.
func (s *Service) Result(ctx context.Context, id string) (models.JobRecord, error) {
	rec, found, err := s.cache.GetRecord(ctx, id)
	if err != nil {
		s.logger.Warn("cache lookup failed", "captcha_id", id, "error", err)
	} else if found && rec.Status.IsTerminal() {
		return rec, nil
	}
	return s.store.Get(ctx, id)
}

// Shutdown stops accepting submissions and waits for in-flight jobs. If ctx
// expires first, running extractions are cancelled so they record an error,
// and ctx's error is returned.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelWork()
		return nil
	case <-ctx.Done():
		s.cancelWork()
		<-done
		return ctx.Err()
	}
}

// run performs one extraction. It recovers from panics and always attempts to
// leave the job completed or error.
func (s *Service) run(id string, img image.Image, apiKey string) {
	defer s.wg.Done()

	ctx := context.Background()
	start := time.Now()
	log := s.logger.With(
		"captcha_id", id,
		"provider", s.extractor.Name(),
		"key_fp", extract.Fingerprint(apiKey),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in extraction worker", "error", r)
			s.finish(ctx, log, id, models.StatusError, fmt.Sprintf("panic: %v", r), start)
		}
	}()

	if s.sem != nil {
		if err := s.sem.Acquire(s.workCtx, 1); err != nil {
			s.finish(ctx, log, id, models.StatusError, fmt.Sprintf("extraction cancelled: %v", err), start)
			return
		}
		defer s.sem.Release(1)
	}

	text, err := s.extract(img, apiKey)
	if err != nil {
		log.Warn("extraction failed", "error", err)
		s.finish(ctx, log, id, models.StatusError, err.Error(), start)
		return
	}
	s.finish(ctx, log, id, models.StatusCompleted, text, start)
}

func (s *Service) extract(img image.Image, apiKey string) (string, error) {
	png, err := imaging.EncodePNG(img)
	if err != nil {
		return "", err
	}

	ctx := s.workCtx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	text, err := s.extractor.Extract(ctx, models.ExtractRequest{
		APIKey:      apiKey,
		Image:       png,
		MIMEType:    imaging.PNGMimeType,
		Instruction: s.opts.Instruction,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, extract.ErrInferenceTimeout) {
			return "", fmt.Errorf("%w: %v", extract.ErrInferenceTimeout, err)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s returned no text", extract.ErrInvalidResponse, s.extractor.Name())
	}
	return text, nil
}

// finish writes the terminal outcome and mirrors it to the cache. A job that
// is no longer in the store, or is already terminal, is left untouched.
func (s *Service) finish(ctx context.Context, log *slog.Logger, id string, to models.Status, result string, start time.Time) {
	var (
		written bool
		final   models.JobRecord
		from    models.Status
	)
	found, err := s.store.Update(ctx, id, func(rec *models.JobRecord) {
		from = rec.Status
		if !models.ValidTransition(rec.Status, to) {
			return
		}
		if to == models.StatusCompleted {
			rec.Complete(result)
		} else {
			rec.Fail(result)
		}
		written = true
		final = *rec
	})
	elapsed := time.Since(start).Milliseconds()

	switch {
	case err != nil:
		log.Error("failed to record job outcome", "status", to, "error", err, "elapsed_ms", elapsed)
		return
	case !found:
		log.Warn("job vanished before its outcome was recorded", "status", to, "elapsed_ms", elapsed)
		return
	case !written:
		log.Warn("refusing invalid status transition", "from", from, "to", to, "elapsed_ms", elapsed)
		return
	}

	log.Info("job finished", "status", to, "elapsed_ms", elapsed)

	if err := s.cache.SetRecord(ctx, id, final, s.opts.CacheTTL); err != nil {
		log.Warn("cache write failed", "error", err)
	}
}
