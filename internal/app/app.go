// Package app wires configuration into a ready-to-run cross-posting stack.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/blackmichael/bluesky-crosspost/internal/bluesky"
	"github.com/blackmichael/bluesky-crosspost/internal/config"
	"github.com/blackmichael/bluesky-crosspost/internal/domain"
	"github.com/blackmichael/bluesky-crosspost/internal/jobs"
	"github.com/blackmichael/bluesky-crosspost/internal/mastodon"
	"github.com/blackmichael/bluesky-crosspost/internal/media"
	"github.com/blackmichael/bluesky-crosspost/internal/sqlite"
)

// App holds the long-lived components shared by the server and the CLI.
type App struct {
	Config    *config.Config
	Repo      *sqlite.Repository
	Service   *domain.Service
	Queue     *jobs.Queue
	Mastodon  *mastodon.Client
	Converter mastodon.Converter
}

// New opens the database and builds the service and job queue.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	sealer, err := sqlite.NewSealer(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("create sealer: %w", err)
	}

	repo, err := sqlite.Open(cfg.DatabasePath, sealer)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("opened database", "path", cfg.DatabasePath)

	pds := bluesky.NewClient(cfg.PDSURL())

	fetcher := media.NewFetcher(media.FetcherOptions{
		LocalRoot: cfg.Mastodon.MediaRoot,
	}, cfg.Media, logger)

	builder := domain.NewRecordBuilder(cfg.CharacterBudget, cfg.LocalDomain(), cfg.Media, fetcher, pds, logger)
	diff := domain.NewProfileDiff(cfg.ProfileFreshness, nil, fetcher)

	service := domain.NewService(pds, pds, repo, repo, builder, diff, domain.ServiceConfig{
		PDSDomain:     cfg.PDS.Domain,
		AdminPassword: cfg.PDS.AdminPassword,
	}, logger)

	converter := mastodon.Converter{LocalMediaPrefix: mediaPrefix(cfg)}
	client := mastodon.NewClient(cfg.Mastodon.URL, cfg.Mastodon.Token)
	source := mastodon.NewSource(client, converter)

	return &App{
		Config:    cfg,
		Repo:      repo,
		Service:   service,
		Queue:     jobs.NewQueue(cfg.QueueSize, service, source, logger),
		Mastodon:  client,
		Converter: converter,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Repo.Close()
}

// Subscriber returns a stream subscriber feeding the queue, or nil when no
// streaming credentials are configured.
func (a *App) Subscriber(logger *slog.Logger) *mastodon.Subscriber {
	m := a.Config.Mastodon
	if m.Token == "" || m.AccountID == "" {
		return nil
	}
	return mastodon.NewSubscriber(mastodon.SubscriberConfig{
		InstanceURL: m.URL,
		Token:       m.Token,
		AccountID:   m.AccountID,
	}, a.Converter, a.Queue, logger)
}

// NewLogger returns a JSON logger writing to w at the named level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func mediaPrefix(cfg *config.Config) string {
	if cfg.Mastodon.MediaRoot == "" {
		return ""
	}
	return cfg.Mastodon.MediaURLPrefix
}
