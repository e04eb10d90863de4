package persist

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Source is one snapshottable table. Encode serializes its current state;
// Restore rebuilds it from a previously saved snapshot.
type Source struct {
	Name    string
	Encode  func() ([]byte, error)
	Restore func(data []byte) error
}

// Snapshotter periodically saves registered sources to a store and restores
// them on startup. Every operation is best effort.
type Snapshotter struct {
	store    Store
	sources  []Source
	interval time.Duration
	logger   *slog.Logger
}

// NewSnapshotter creates a snapshotter. A non-positive interval defaults to
// 5 minutes; a nil logger falls back to slog.Default.
func NewSnapshotter(store Store, interval time.Duration, logger *slog.Logger) *Snapshotter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{store: store, interval: interval, logger: logger}
}

// Register adds a snapshottable source. Not safe to call after Run starts.
func (s *Snapshotter) Register(src Source) {
	s.sources = append(s.sources, src)
}

// RestoreAll loads every registered source. Missing snapshots are skipped
// and corrupt ones are logged and dropped; both mean that source cold
// starts. RestoreAll never returns an error.
func (s *Snapshotter) RestoreAll(ctx context.Context) {
	for _, src := range s.sources {
		data, err := s.store.Load(ctx, src.Name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("snapshot load failed, cold start", "source", src.Name, "error", err)
			continue
		}
		if err := src.Restore(data); err != nil {
			s.logger.Warn("snapshot corrupt, cold start", "source", src.Name, "error", err)
		}
	}
}

// SaveAll snapshots every registered source. Failures are logged, not
// returned; a missed snapshot only widens the potential cold-start window.
func (s *Snapshotter) SaveAll(ctx context.Context) {
	for _, src := range s.sources {
		data, err := src.Encode()
		if err != nil {
			s.logger.Warn("snapshot encode failed", "source", src.Name, "error", err)
			continue
		}
		if err := s.store.Save(ctx, src.Name, data); err != nil {
			s.logger.Warn("snapshot save failed", "source", src.Name, "error", err)
		}
	}
}

// Run saves all sources at the configured interval until the context ends,
// then takes one final snapshot.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.SaveAll(context.Background())
			return
		case <-ticker.C:
			s.SaveAll(ctx)
		}
	}
}
