package notifications

import (
	"context"
	"fmt"
	"sync"

	"github.com/wovera/storefront-backend/pkg/config"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/logger"
)

type creator interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Dispatcher fans notification writes out to a bounded worker pool.
// Delivery is best effort: when the queue is full the notification is
// dropped with a warning, and order processing never waits on it.
type Dispatcher struct {
	repo    creator
	queue   chan *models.Notification
	workers int
	logg    *logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher sizes the queue and worker pool from configuration.
func NewDispatcher(repo creator, cfg config.NotificationsConfig, logg *logger.Logger) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		repo:    repo,
		queue:   make(chan *models.Notification, queueSize),
		workers: workers,
		logg:    logg,
	}, nil
}

// Start launches the worker pool. Workers drain the queue until Stop
// closes it; the context bounds each individual write.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx)
		}
	})
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for notification := range d.queue {
		if err := d.repo.Create(ctx, notification); err != nil {
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"store_id": notification.StoreID.String(),
				"type":     notification.Type.String(),
			})
			d.logg.Error(logCtx, "notification write failed", err)
		}
	}
}

// Enqueue hands a notification to the pool without blocking. The return
// value reports whether it was accepted.
func (d *Dispatcher) Enqueue(ctx context.Context, notification *models.Notification) bool {
	if notification == nil {
		return false
	}
	select {
	case d.queue <- notification:
		return true
	default:
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"store_id": notification.StoreID.String(),
			"type":     notification.Type.String(),
		})
		d.logg.Warn(logCtx, "notification queue saturated, dropping")
		return false
	}
}

// Stop closes the queue and waits for in-flight writes to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}
