// Package store persists the watchlist for the variant with no backend.
//
// The whole watchlist is one flat, ordered JSON array kept in a key-value slot
// under a fixed key. It is rewritten on every watchlist mutation and reloaded
// verbatim at startup.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/logging"
	"stockwatch/internal/models"
)

// DefaultKey is the slot key the watchlist is stored under.
const DefaultKey = "stockwatch.watchlist"

// Slot is a single-key persistence slot.
type Slot interface {
	// Load returns the stored bytes. ok is false when nothing was stored yet.
	Load(ctx context.Context) (data []byte, ok bool, err error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// Backend names a Slot implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// SlotConfig selects and configures a Slot.
type SlotConfig struct {
	Backend   Backend
	Path      string
	RedisAddr string
	Key       string
}

// OpenSlot opens the slot described by cfg.
func OpenSlot(ctx context.Context, cfg SlotConfig) (Slot, error) {
	key := cfg.Key
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}

	switch cfg.Backend {
	case BackendSQLite, "":
		return NewSQLiteSlot(cfg.Path, key)
	case BackendRedis:
		return NewRedisSlot(ctx, cfg.RedisAddr, key)
	case BackendMemory:
		return NewMemorySlot(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Encode serializes the ordered records, leaving out drafts.
func Encode(records []models.PlanRecord) ([]byte, error) {
	out := make([]models.PlanRecord, 0, len(records))
	for _, r := range records {
		if r.ID == "" || models.IsDraftID(r.ID) {
			continue
		}
		out = append(out, r)
	}
	return json.Marshal(out)
}

// Decode parses a stored watchlist.
func Decode(data []byte) ([]models.PlanRecord, error) {
	var records []models.PlanRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist: %w", err)
	}
	out := records[:0]
	for _, r := range records {
		if r.ID == "" || models.IsDraftID(r.ID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadRecords reads the watchlist from slot. An empty slot yields no records.
func LoadRecords(ctx context.Context, slot Slot) ([]models.PlanRecord, error) {
	data, ok, err := slot.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}
	return Decode(data)
}

// Snapshotter rewrites a slot whenever the watchlist changes.
type Snapshotter struct {
	slot    Slot
	logger  zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	lastSeq uint64
	lastErr error
}

// NewSnapshotter creates a Snapshotter writing to slot.
func NewSnapshotter(slot Slot, logger zerolog.Logger) *Snapshotter {
	return &Snapshotter{
		slot:    slot,
		logger:  logging.WithComponent(logger, "store"),
		timeout: 5 * time.Second,
	}
}

// Write persists records for change seq. Writes older than the last one are ignored.
// It has the signature of a watchlist change hook.
func (s *Snapshotter) Write(seq uint64, records []models.PlanRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.lastSeq {
		s.logger.Debug().Uint64("seq", seq).Uint64("last_seq", s.lastSeq).Msg("Stale snapshot ignored")
		return
	}

	data, err := Encode(records)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err = s.slot.Save(ctx, data)
		cancel()
	}
	s.lastErr = err
	if err != nil {
		s.logger.Error().Err(err).Uint64("seq", seq).Msg("Failed to persist watchlist")
		return
	}
	s.lastSeq = seq
}

// Err returns the error of the last write, if any.
func (s *Snapshotter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
