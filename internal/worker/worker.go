// Package worker drains the Redis job queues: signing-link emails and
// signature image archives.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/mailer"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/queue"
)

// DequeueTimeout bounds a single blocking pop so shutdown is noticed.
const DequeueTimeout = 5 * time.Second

// ErrPermanent marks a job that must not be retried.
var ErrPermanent = errors.New("permanent job failure")

// Processor handles one job type.
type Processor interface {
	Process(ctx context.Context, job *queue.Job) error
}

// JobQueue is the subset of *queue.Queue the runner uses.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
	DeadLetter(ctx context.Context, job *queue.Job) error
}

// Runner dispatches dequeued jobs to processors by type.
type Runner struct {
	queue      JobQueue
	processors map[queue.JobType]Processor
	queues     []string
	backoff    time.Duration
	logger     *zap.Logger
}

// NewRunner creates a runner that listens on the given queues.
func NewRunner(q JobQueue, processors map[queue.JobType]Processor, queues []string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{queue: q, processors: processors, queues: queues, backoff: queue.RetryBackoff, logger: logger}
}

// Handle processes one job and decides between done, retry and dead letter.
func (r *Runner) Handle(ctx context.Context, job *queue.Job) {
	p, ok := r.processors[job.Type]
	if !ok {
		r.logger.Error("no processor for job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		_ = r.queue.DeadLetter(ctx, job)
		return
	}
	r.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err := p.Process(ctx, job)
	if err == nil {
		return
	}
	r.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	if !Retryable(err) {
		if dlErr := r.queue.DeadLetter(ctx, job); dlErr != nil {
			r.logger.Error("dead letter failed", zap.String("job_id", job.ID), zap.Error(dlErr))
		}
		return
	}
	if reErr := r.queue.Retry(ctx, job); reErr != nil {
		r.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
	}
}

// Retryable reports whether a failed job should be retried. Integrity,
// validation and not-found failures never are.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrPermanent),
		errors.Is(err, apperr.ErrIntegrityViolation),
		errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrNotFound):
		return false
	}
	return true
}

// Run starts the worker loop: dequeue, process, retry on error.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("worker started", zap.Strings("queues", r.queues))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := r.queue.Dequeue(ctx, DequeueTimeout, r.queues...)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, r.backoff)
			continue
		}
		if job == nil {
			continue
		}
		r.Handle(ctx, job)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Mailer delivers signing links.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, redirectURL string) error
}

// EmailLogStore records delivery attempts.
type EmailLogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor sends signing-link emails and logs every attempt.
type EmailProcessor struct {
	mailer Mailer
	logs   EmailLogStore
	logger *zap.Logger
	now    func() time.Time
}

// NewEmailProcessor creates an email processor.
func NewEmailProcessor(mailer Mailer, logs EmailLogStore, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{mailer: mailer, logs: logs, logger: logger, now: time.Now}
}

// Process executes one signing-link job. Links that expired while queued are dropped.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSigningLink {
		return fmt.Errorf("%w: unexpected job type %s", ErrPermanent, job.Type)
	}
	var payload queue.SigningLinkPayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if !payload.ExpiresAt.IsZero() && !p.now().Before(payload.ExpiresAt) {
		p.logger.Info("signing link expired before delivery",
			zap.String("job_id", job.ID), zap.String("contract_id", payload.ContractID.String()))
		return nil
	}

	contractID := payload.ContractID
	entry := &models.EmailLog{
		ContractID:     &contractID,
		EmailType:      models.EmailTypeSigningLink,
		RecipientEmail: payload.RecipientEmail,
		Subject:        mailer.SigningLinkSubject,
		Status:         models.EmailLogStatusPending,
		Attempt:        job.Attempt + 1,
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		p.logger.Warn("create email log", zap.String("job_id", job.ID), zap.Error(err))
		entry = nil
	}

	if err := p.mailer.SendMagicLink(ctx, payload.RecipientEmail, payload.RedirectURL); err != nil {
		if entry != nil {
			if mErr := p.logs.MarkFailed(ctx, entry.ID, err.Error()); mErr != nil {
				p.logger.Warn("mark email failed", zap.String("job_id", job.ID), zap.Error(mErr))
			}
		}
		return fmt.Errorf("send signing link: %w", err)
	}
	if entry != nil {
		if err := p.logs.MarkSent(ctx, entry.ID); err != nil {
			p.logger.Warn("mark email sent", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	p.logger.Info("signing link sent", zap.String("job_id", job.ID), zap.String("contract_id", contractID.String()))
	return nil
}

// SignatureSource loads a signature with its image.
type SignatureSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Signature, error)
	RecordArchive(ctx context.Context, a models.SignatureArchive) error
}

// ObjectStore writes signature images.
type ObjectStore interface {
	SignaturesBucket() string
	PutSignature(ctx context.Context, key, contentType string, image []byte) (string, error)
}

// ArchiveProcessor copies signature images to object storage.
type ArchiveProcessor struct {
	signatures SignatureSource
	store      ObjectStore
	keyFor     func(contractID, signatureID, contentType string) string
	logger     *zap.Logger
}

// NewArchiveProcessor creates an archive processor. keyFor builds object keys.
func NewArchiveProcessor(signatures SignatureSource, store ObjectStore, keyFor func(contractID, signatureID, contentType string) string, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{signatures: signatures, store: store, keyFor: keyFor, logger: logger}
}

// Process executes one archive job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSignatureArchive {
		return fmt.Errorf("%w: unexpected job type %s", ErrPermanent, job.Type)
	}
	var payload queue.SignatureArchivePayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	sig, err := p.signatures.Get(ctx, payload.SignatureID)
	if err != nil {
		return fmt.Errorf("load signature %s: %w", payload.SignatureID, err)
	}
	key := p.keyFor(sig.ContractID.String(), sig.ID.String(), sig.ImageContentType)
	location, err := p.store.PutSignature(ctx, key, sig.ImageContentType, sig.Image)
	if err != nil {
		return fmt.Errorf("archive signature %s: %w", sig.ID, err)
	}
	if err := p.signatures.RecordArchive(ctx, models.SignatureArchive{
		SignatureID: sig.ID,
		Bucket:      p.store.SignaturesBucket(),
		ObjectKey:   key,
	}); err != nil {
		return fmt.Errorf("record archive: %w", err)
	}
	p.logger.Info("signature archived", zap.String("job_id", job.ID), zap.String("signature_id", sig.ID.String()), zap.String("location", location))
	return nil
}
