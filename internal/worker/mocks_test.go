package worker_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/gomega"

	"github.com/pactline/backend/internal/apperr"
	"github.com/pactline/backend/internal/models"
	"github.com/pactline/backend/pkg/queue"
)

func newJob(typ queue.JobType, payload any) *queue.Job {
	raw, err := json.Marshal(payload)
	Expect(err).NotTo(HaveOccurred())
	return &queue.Job{ID: uuid.NewString(), Type: typ, Payload: raw, CreatedAt: time.Now()}
}

type mockQueue struct {
	retried      []*queue.Job
	deadLettered []*queue.Job
}

func (q *mockQueue) Dequeue(context.Context, time.Duration, ...string) (*queue.Job, string, error) {
	return nil, "", nil
}

func (q *mockQueue) Retry(_ context.Context, job *queue.Job) error {
	q.retried = append(q.retried, job)
	return nil
}

func (q *mockQueue) DeadLetter(_ context.Context, job *queue.Job) error {
	q.deadLettered = append(q.deadLettered, job)
	return nil
}

type processorFunc func(ctx context.Context, job *queue.Job) error

func (f processorFunc) Process(ctx context.Context, job *queue.Job) error { return f(ctx, job) }

type mockMailer struct {
	err  error
	sent []string
}

func (m *mockMailer) SendMagicLink(_ context.Context, email, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type memEmailLogs struct {
	entries map[uuid.UUID]*models.EmailLog
}

func (m *memEmailLogs) Create(_ context.Context, el *models.EmailLog) error {
	el.ID = uuid.New()
	m.entries[el.ID] = el
	return nil
}

func (m *memEmailLogs) MarkSent(_ context.Context, id uuid.UUID) error {
	m.entries[id].Status = models.EmailLogStatusSent
	return nil
}

func (m *memEmailLogs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.entries[id].Status = models.EmailLogStatusFailed
	m.entries[id].ErrorMessage = reason
	return nil
}

func (m *memEmailLogs) only() *models.EmailLog {
	Expect(m.entries).To(HaveLen(1))
	for _, e := range m.entries {
		return e
	}
	return nil
}

type memSignatures struct {
	sigs     map[uuid.UUID]*models.Signature
	archives []models.SignatureArchive
}

func (m *memSignatures) Get(_ context.Context, id uuid.UUID) (*models.Signature, error) {
	s, ok := m.sigs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s, nil
}

func (m *memSignatures) RecordArchive(_ context.Context, a models.SignatureArchive) error {
	m.archives = append(m.archives, a)
	return nil
}

type mockObjectStore struct {
	keys []string
	err  error
}

func (s *mockObjectStore) SignaturesBucket() string { return "signatures" }

func (s *mockObjectStore) PutSignature(_ context.Context, key, _ string, _ []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	return "s3://signatures/" + key, nil
}
