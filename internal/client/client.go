// Package client wires configuration into a ready-to-use engine: state
// backend, cache, feed source, coordinator, sync queue, refresh
// scheduler, and the dashboard hub.
package client

import (
	"fmt"
	"path/filepath"

	"github.com/brickops/fieldsync/internal/cache"
	"github.com/brickops/fieldsync/internal/config"
	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/feeds"
	"github.com/brickops/fieldsync/internal/publish"
	"github.com/brickops/fieldsync/internal/services/coordinator"
	"github.com/brickops/fieldsync/internal/services/refresh"
	"github.com/brickops/fieldsync/internal/services/syncq"
	"github.com/brickops/fieldsync/internal/state"
	"github.com/brickops/fieldsync/internal/transport"
)

// Client bundles the engine services behind one construction path.
type Client struct {
	Config *config.Config
	Logger *events.Logger

	State       state.Store
	Cache       *cache.Store
	Source      feeds.Source
	Coordinator *coordinator.Coordinator
	Queue       *syncq.Manager
	Pusher      syncq.Pusher
	Scheduler   *refresh.Scheduler
	Hub         *publish.Hub
	Notifier    publish.Notifier
}

// New builds a client from config.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := newStateStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	cacheStore := cache.NewStore(store, cfg.Cache, logger)

	var source feeds.Source
	var pusher syncq.Pusher
	if cfg.API.UseMock {
		mock := feeds.NewMockSource()
		source = mock
		pusher = localEchoPusher{}
		logger.Info("Using mock feed source")
	} else {
		httpClient := transport.NewHTTPClient(&cfg.API, logger)
		source = feeds.NewSocrataSource(httpClient, logger)
		pusher = syncq.NewRemotePusher(httpClient)
	}

	queue, err := syncq.NewManager(store, cfg.Queue, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create sync queue: %w", err)
	}

	hub := publish.NewHub(logger)

	notifier := publish.Notifier(publish.NewLogNotifier(logger))
	if cfg.Dashboard.NotifyURL != "" {
		notifier = publish.MultiNotifier{
			publish.NewLogNotifier(logger),
			publish.NewWebhookNotifier(cfg.Dashboard.NotifyURL, logger),
		}
	}

	return &Client{
		Config:      cfg,
		Logger:      logger,
		State:       store,
		Cache:       cacheStore,
		Source:      source,
		Coordinator: coordinator.New(cacheStore, source, cfg.Coordinator, logger),
		Queue:       queue,
		Pusher:      pusher,
		Scheduler:   refresh.NewScheduler(cacheStore, source, hub, notifier, cfg.Refresh, logger),
		Hub:         hub,
		Notifier:    notifier,
	}, nil
}

// Close releases held resources.
func (c *Client) Close() error {
	c.Scheduler.Stop()
	c.Hub.Stop()
	return c.State.Close()
}

func newStateStore(cfg *config.Config, logger *events.Logger) (state.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return state.NewSQLiteStore(filepath.Join(cfg.StateDir(), "fieldsync.db"), logger)
	default:
		return state.NewJSONStore(cfg.StateDir(), logger)
	}
}
