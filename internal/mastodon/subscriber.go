package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/bluesky-crosspost/internal/jobs"
)

const (
	reconnectDelay  = 5 * time.Second
	statsLogEvery   = 30 * time.Second
	defaultStream   = "user"
	streamingPath   = "/api/v1/streaming"
	eventUpdate     = "update"
	eventDelete     = "delete"
	eventEditUpdate = "status.update"
)

// Enqueuer accepts jobs. *jobs.Queue implements it.
type Enqueuer interface {
	Enqueue(job jobs.Job) (string, error)
}

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	// InstanceURL is the instance base URL, for example https://mastodon.social.
	InstanceURL string

	// Token is the access token of the account whose stream is followed.
	Token string

	// AccountID is the account whose posts are mirrored. Statuses by other
	// accounts appearing in the stream are ignored.
	AccountID string
}

// Subscriber follows the streaming API of an account and enqueues publish
// and delete jobs for its posts.
type Subscriber struct {
	cfg       SubscriberConfig
	converter Converter
	queue     Enqueuer
	dialer    *websocket.Dialer
	logger    *slog.Logger
}

// NewSubscriber creates a new streaming subscriber.
func NewSubscriber(cfg SubscriberConfig, converter Converter, queue Enqueuer, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		cfg:       cfg,
		converter: converter,
		queue:     queue,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
	}
}

// Start connects to the stream and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("stream connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) streamURL() (string, error) {
	u, err := url.Parse(s.cfg.InstanceURL)
	if err != nil {
		return "", fmt.Errorf("parse instance url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + streamingPath
	q := u.Query()
	q.Set("stream", defaultStream)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	wsURL, err := s.streamURL()
	if err != nil {
		return err
	}
	s.logger.Info("connecting to stream", "url", wsURL)

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, _, err := s.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Info("connected to stream")

	var eventsReceived, jobsEnqueued int64
	lastStatsLog := time.Now()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		eventsReceived++
		enqueued, err := s.handleMessage(message)
		if err != nil {
			s.logger.Error("failed to handle stream event", "error", err)
		} else if enqueued {
			jobsEnqueued++
		}

		if time.Since(lastStatsLog) >= statsLogEvery {
			s.logger.Info("stream stats",
				"events_received", eventsReceived,
				"jobs_enqueued", jobsEnqueued,
			)
			lastStatsLog = time.Now()
		}
	}
}

// handleMessage turns one stream message into at most one job.
func (s *Subscriber) handleMessage(message []byte) (bool, error) {
	var event streamEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return false, fmt.Errorf("unmarshal event: %w", err)
	}

	switch event.Event {
	case eventUpdate:
		var status Status
		if err := json.Unmarshal([]byte(event.Payload), &status); err != nil {
			return false, fmt.Errorf("unmarshal status: %w", err)
		}
		if status.Account.ID != s.cfg.AccountID || !Mirrorable(&status) {
			return false, nil
		}

		id, err := s.queue.Enqueue(jobs.Job{
			Kind:      jobs.KindPublishPost,
			AccountID: status.Account.ID,
			PostID:    status.ID,
			Post:      s.converter.Post(&status),
		})
		if err != nil {
			return false, fmt.Errorf("enqueue publish %s: %w", status.ID, err)
		}
		s.logger.Info("publish job enqueued", "job_id", id, "post_id", status.ID)
		return true, nil

	case eventDelete:
		if event.Payload == "" {
			return false, nil
		}
		id, err := s.queue.Enqueue(jobs.Job{
			Kind:      jobs.KindDeletePost,
			AccountID: s.cfg.AccountID,
			PostID:    event.Payload,
		})
		if err != nil {
			return false, fmt.Errorf("enqueue delete %s: %w", event.Payload, err)
		}
		s.logger.Debug("delete job enqueued", "job_id", id, "post_id", event.Payload)
		return true, nil

	case eventEditUpdate:
		s.logger.Debug("ignoring status edit")
		return false, nil

	default:
		return false, nil
	}
}
