// Package jobs runs cross-posting work one job at a time in the background.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackmichael/bluesky-crosspost/internal/domain"
	"github.com/blackmichael/bluesky-crosspost/internal/lexicon"
)

// Kind names the operation a Job performs.
type Kind string

const (
	KindPublishPost   Kind = "publish_post"
	KindDeletePost    Kind = "delete_post"
	KindSyncProfile   Kind = "sync_profile"
	KindCreateAccount Kind = "create_account"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
	ErrUnknownKind = errors.New("unknown job kind")
)

// Job is a single unit of cross-posting work.
type Job struct {
	ID        string
	Kind      Kind
	AccountID string

	// PostID identifies the source post for publish and delete jobs.
	PostID string

	// RecordURI optionally names the record to delete directly.
	RecordURI string

	// Post and Profile carry already-resolved source data. When nil, the job
	// loads it from the Source.
	Post    *domain.Post
	Profile *domain.ProfileSource

	EnqueuedAt time.Time
}

// Runner performs the operations jobs describe. *domain.Service implements it.
type Runner interface {
	PublishPost(ctx context.Context, post *domain.Post) (lexicon.RecordRef, error)
	DeletePost(ctx context.Context, accountID, postID, recordURI string) error
	SyncProfile(ctx context.Context, src *domain.ProfileSource) (bool, error)
	CreateAccount(ctx context.Context, src *domain.ProfileSource) error
}

// Source loads source posts and profiles by id.
type Source interface {
	Post(ctx context.Context, postID string) (*domain.Post, error)
	Profile(ctx context.Context, accountID string) (*domain.ProfileSource, error)
}

// Queue is an in-process FIFO of jobs drained by a single worker.
type Queue struct {
	jobs   chan Job
	runner Runner
	source Source
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a Queue holding up to size pending jobs.
func NewQueue(size int, runner Runner, source Source, logger *slog.Logger) *Queue {
	return &Queue{
		jobs:   make(chan Job, size),
		runner: runner,
		source: source,
		logger: logger,
	}
}

// Enqueue adds job to the queue without blocking and returns its id.
func (q *Queue) Enqueue(job Job) (string, error) {
	switch job.Kind {
	case KindPublishPost, KindDeletePost, KindSyncProfile, KindCreateAccount:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return "", ErrQueueClosed
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued", "job_id", job.ID, "kind", job.Kind)
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Run processes jobs one at a time until ctx is cancelled, then stops
// accepting new jobs. Job failures are logged and never stop the worker.
func (q *Queue) Run(ctx context.Context) {
	defer func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		if n := len(q.jobs); n > 0 {
			q.logger.Warn("job queue stopped with pending jobs", "pending", n)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job) {
	logger := q.logger.With(
		"job_id", job.ID,
		"kind", job.Kind,
		"account_id", job.AccountID,
		"post_id", job.PostID,
	)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
		}
	}()

	if err := q.Do(ctx, job); err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Info("job complete", "duration", time.Since(start))
}

// Do runs job synchronously.
func (q *Queue) Do(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindPublishPost:
		post, err := q.post(ctx, job)
		if err != nil {
			return err
		}
		_, err = q.runner.PublishPost(ctx, post)
		return err

	case KindDeletePost:
		return q.runner.DeletePost(ctx, job.AccountID, job.PostID, job.RecordURI)

	case KindSyncProfile:
		profile, err := q.profile(ctx, job)
		if err != nil {
			return err
		}
		_, err = q.runner.SyncProfile(ctx, profile)
		return err

	case KindCreateAccount:
		profile, err := q.profile(ctx, job)
		if err != nil {
			return err
		}
		return q.runner.CreateAccount(ctx, profile)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}
}

func (q *Queue) post(ctx context.Context, job Job) (*domain.Post, error) {
	if job.Post != nil {
		return job.Post, nil
	}
	post, err := q.source.Post(ctx, job.PostID)
	if err != nil {
		return nil, fmt.Errorf("load post %s: %w", job.PostID, err)
	}
	return post, nil
}

func (q *Queue) profile(ctx context.Context, job Job) (*domain.ProfileSource, error) {
	if job.Profile != nil {
		return job.Profile, nil
	}
	profile, err := q.source.Profile(ctx, job.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", job.AccountID, err)
	}
	return profile, nil
}
