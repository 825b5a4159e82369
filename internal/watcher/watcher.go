// Package watcher polls the resources table and reports kinds changed by
// other processes sharing the database.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudbsd/admin-panel/internal/lifecycle"
	"github.com/cloudbsd/admin-panel/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// DefaultPollInterval controls how often snapshots are refreshed.
	DefaultPollInterval = 2 * time.Second
	// defaultQueryTimeout bounds DB query duration.
	defaultQueryTimeout = 10 * time.Second
)

// snapshot is the change marker of one resource kind.
type snapshot struct {
	count     int64
	latestID  uint64
	latestAt  time.Time
	hasLatest bool
}

func (s snapshot) equal(other snapshot) bool {
	return s.count == other.count &&
		s.hasLatest == other.hasLatest &&
		s.latestID == other.latestID &&
		s.latestAt.Equal(other.latestAt)
}

// Watcher polls resource snapshots and notifies on change.
type Watcher struct {
	db           *gorm.DB
	notify       lifecycle.Notifier
	pollInterval time.Duration

	mu        sync.Mutex
	snapshots map[lifecycle.Kind]snapshot
	primed    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Watcher. A non-positive interval uses DefaultPollInterval.
func New(db *gorm.DB, notify lifecycle.Notifier, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		db:           db,
		notify:       notify,
		pollInterval: interval,
		snapshots:    make(map[lifecycle.Kind]snapshot, len(lifecycle.Kinds)),
	}
}

// Start launches the polling goroutine. Stop or cancelling ctx ends it.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil || w.db == nil {
		return nil
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()

	log.Infof("db watcher started (poll_interval=%s)", w.pollInterval)
	return nil
}

// Stop cancels polling and waits for it to exit.
func (w *Watcher) Stop() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
	return nil
}

// run executes the periodic polling loop until the context is canceled.
func (w *Watcher) run(ctx context.Context) {
	w.poll(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll refreshes every snapshot and notifies for kinds that changed. The
// first call only records the baseline.
func (w *Watcher) poll(ctx context.Context) []lifecycle.Kind {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changed []lifecycle.Kind
	for _, kind := range lifecycle.Kinds {
		current, errSnap := w.snapshotKind(ctx, kind)
		if errSnap != nil {
			if !errors.Is(errSnap, context.Canceled) {
				log.WithError(errSnap).WithField("kind", kind).Warn("db watcher: query resources failed")
			}
			continue
		}
		previous, seen := w.snapshots[kind]
		w.snapshots[kind] = current
		if !w.primed || (seen && previous.equal(current)) {
			continue
		}
		changed = append(changed, kind)
	}
	w.primed = true

	if w.notify != nil {
		for _, kind := range changed {
			log.Debugf("db watcher: %s changed", kind)
			w.notify.ResourceUpdated(kind.String())
		}
	}
	return changed
}

func (w *Watcher) snapshotKind(ctx context.Context, kind lifecycle.Kind) (snapshot, error) {
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var snap snapshot
	if errCount := w.db.WithContext(qctx).
		Model(&models.Resource{}).
		Where("type = ?", kind.String()).
		Count(&snap.count).Error; errCount != nil {
		return snapshot{}, errCount
	}

	// latestRow captures the newest resource timestamp for change detection.
	type latestRow struct {
		ID        uint64     `gorm:"column:id"`         // Latest resource ID.
		UpdatedAt *time.Time `gorm:"column:updated_at"` // Latest resource update time.
	}
	var latest latestRow
	errLatest := w.db.WithContext(qctx).
		Model(&models.Resource{}).
		Select("id", "updated_at").
		Where("type = ?", kind.String()).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(1).
		Take(&latest).Error
	switch {
	case errors.Is(errLatest, gorm.ErrRecordNotFound):
	case errLatest != nil:
		return snapshot{}, errLatest
	default:
		snap.hasLatest = true
		snap.latestID = latest.ID
		if latest.UpdatedAt != nil {
			snap.latestAt = latest.UpdatedAt.UTC()
		}
	}
	return snap, nil
}
