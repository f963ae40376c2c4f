package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEmails is the Redis list key for signing-link email jobs.
	QueueEmails = "worker:emails"
	// QueueArchives is the Redis list key for signature image archive jobs.
	QueueArchives = "worker:archives"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeSigningLink      JobType = "signing_link_email"
	JobTypeSignatureArchive JobType = "signature_archive"
)

// queueFor maps a job type to the list it is pushed to.
var queueFor = map[JobType]string{
	JobTypeSigningLink:      QueueEmails,
	JobTypeSignatureArchive: QueueArchives,
}

// SigningLinkPayload is the payload for magic-link email jobs. The raw link is
// only ever present here and in the delivered email.
type SigningLinkPayload struct {
	ContractID     uuid.UUID `json:"contract_id"`
	RecipientEmail string    `json:"recipient_email"`
	RedirectURL    string    `json:"redirect_url"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// SignatureArchivePayload is the payload for copying a signature image to object storage.
type SignatureArchivePayload struct {
	SignatureID uuid.UUID `json:"signature_id"`
	ContractID  uuid.UUID `json:"contract_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueSigningLink enqueues a magic-link email job.
func (q *Queue) EnqueueSigningLink(ctx context.Context, payload SigningLinkPayload) error {
	return q.enqueue(ctx, JobTypeSigningLink, payload)
}

// EnqueueSignatureArchive enqueues a signature archive job.
func (q *Queue) EnqueueSignatureArchive(ctx context.Context, payload SignatureArchivePayload) error {
	return q.enqueue(ctx, JobTypeSignatureArchive, payload)
}

func (q *Queue) enqueue(ctx context.Context, typ JobType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, queueFor[typ], raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(typ)))
	return nil
}

// Dequeue blocks until a job is available on any of the given queues or ctx is
// done. Returns job and key (queue name). A nil job with nil error means the
// wait timed out or the entry was malformed.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, timeout, queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("queue", result[0]), zap.Int("bytes", len(result[1])), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		return q.deadLetter(ctx, job, raw)
	}
	target, ok := queueFor[job.Type]
	if !ok {
		return q.deadLetter(ctx, job, raw)
	}
	if err := q.client.RPush(ctx, target, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// DeadLetter moves a job straight to the DLQ without further retries.
func (q *Queue) DeadLetter(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.deadLetter(ctx, job, raw)
}

func (q *Queue) deadLetter(ctx context.Context, job *Job, raw []byte) error {
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
