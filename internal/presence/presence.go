// Package presence derives online/away/offline state from heartbeat
// timestamps. The derived view is time-windowed, not authoritative:
// it can be wrong by up to one staleness window in either direction.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/teamdesk/messaging/internal/msg"
)

// StaleWindow is how long a heartbeat is trusted. The window is
// half-open: a record exactly StaleWindow old is already offline.
const StaleWindow = 5 * time.Minute

// StatusOffline is reported for missing or stale records.
const StatusOffline = "offline"

// activeStatuses are the raw heartbeat values that count as online
// for the conversation list's green dot.
var activeStatuses = map[string]bool{
	"online":    true,
	"available": true,
}

// Derive returns the effective status for a record at the given
// instant. A nil record means the user never heartbeat.
func Derive(rec *msg.PresenceRecord, now time.Time) string {
	if rec == nil {
		return StatusOffline
	}
	age := now.UnixMilli() - rec.LastSeen
	if age >= StaleWindow.Milliseconds() {
		return StatusOffline
	}
	return rec.Status
}

// IsActive reports whether a derived status counts as online.
func IsActive(status string) bool {
	return activeStatuses[status]
}

// Source hands out the current heartbeat records. The aggregator
// reads either a local Recorder (ephemeral mode) or chatd's presence
// endpoint (persisted mode) through this.
type Source interface {
	Records(ctx context.Context) ([]msg.PresenceRecord, error)
}

// Recorder collects heartbeats in memory. chatd holds one for all
// connected users; in ephemeral mode the local process holds its own.
type Recorder struct {
	mu   sync.RWMutex
	recs map[string]msg.PresenceRecord

	now func() int64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		recs: make(map[string]msg.PresenceRecord),
		now:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Beat records a heartbeat for uid with the given raw status.
func (r *Recorder) Beat(uid, status string) {
	r.mu.Lock()
	r.recs[uid] = msg.PresenceRecord{UID: uid, Status: status, LastSeen: r.now()}
	r.mu.Unlock()
}

// Record returns the stored record for uid, or nil if none exists.
func (r *Recorder) Record(uid string) *msg.PresenceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.recs[uid]; ok {
		return &rec
	}
	return nil
}

// Records implements Source.
func (r *Recorder) Records(_ context.Context) ([]msg.PresenceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]msg.PresenceRecord, 0, len(r.recs))
	for _, rec := range r.recs {
		out = append(out, rec)
	}
	return out, nil
}

// RemoteSource adapts a chatd presence reader into a Source.
type RemoteSource struct {
	Fetch func(ctx context.Context) ([]msg.PresenceRecord, error)
}

// Records implements Source.
func (s RemoteSource) Records(ctx context.Context) ([]msg.PresenceRecord, error) {
	return s.Fetch(ctx)
}
