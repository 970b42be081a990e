package sheet

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

// SnapshotEntry is the baseline value of one item.
type SnapshotEntry struct {
	Quantity   float64   `json:"quantity"`
	Unit       string    `json:"unit"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Value returns the entry as a PortalValue.
func (e SnapshotEntry) Value() PortalValue {
	return PortalValue{Quantity: e.Quantity, Unit: e.Unit}
}

// Snapshot is the baseline captured when the editor opens a session. It is
// never mutated after capture; Reset replaces it wholesale.
type Snapshot struct {
	Session    SessionID                 `json:"session"`
	CapturedAt time.Time                 `json:"capturedAt"`
	Entries    map[ItemKey]SnapshotEntry `json:"entries"`
}

// Preferences are the per-session layout choices kept on the local machine.
type Preferences struct {
	FontSizes  map[string]int `json:"fontSizes,omitempty"`  // block ID -> font size
	BlockOrder []string       `json:"blockOrder,omitempty"` // block IDs, first to last
}

// LocalStore is durable key/value persistence on the operator's machine,
// keyed by session. Implementations return ErrSnapshotNotFound when no
// snapshot exists and may return any other error for unreadable data.
type LocalStore interface {
	LoadSnapshot(ctx context.Context, session SessionID) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	LoadPreferences(ctx context.Context, session SessionID) (*Preferences, error)
	SavePreferences(ctx context.Context, session SessionID, prefs *Preferences) error
}

// CaptureSnapshot records the current value of every order line.
func CaptureSnapshot(session SessionID, orders []Order, now time.Time) *Snapshot {
	values := aggregateOrders(orders)
	entries := make(map[ItemKey]SnapshotEntry, len(values))
	for key, value := range values {
		entries[key] = SnapshotEntry{Quantity: value.Quantity, Unit: value.Unit, CapturedAt: now}
	}
	return &Snapshot{Session: session, CapturedAt: now, Entries: entries}
}

// SnapshotManager owns the baseline for a session.
type SnapshotManager struct {
	store  LocalStore
	now    func() time.Time
	memory map[string]*Snapshot // baselines when there is no store
}

// NewSnapshotManager creates a manager backed by store. A nil store keeps
// snapshots in memory only for the lifetime of the manager.
func NewSnapshotManager(store LocalStore) *SnapshotManager {
	return &SnapshotManager{store: store, now: time.Now, memory: make(map[string]*Snapshot)}
}

// LoadOrCreate returns the persisted snapshot for the session, capturing and
// persisting a new one when none exists or the stored one is unreadable.
// Calling it again without Reset never changes the baseline.
func (m *SnapshotManager) LoadOrCreate(ctx context.Context, session SessionID, orders []Order) (*Snapshot, error) {
	if m.store != nil {
		snapshot, err := m.store.LoadSnapshot(ctx, session)
		switch {
		case err == nil && snapshot != nil && snapshot.Entries != nil:
			log.Debug("Loaded snapshot", "session", session, "entries", len(snapshot.Entries))
			return snapshot, nil
		case err == nil || errors.Is(err, ErrSnapshotNotFound):
			log.Info("No snapshot for session, capturing baseline", "session", session)
		default:
			log.Warn("Snapshot unreadable, capturing new baseline", "session", session, "error", err)
		}
	} else if snapshot, ok := m.memory[session.String()]; ok {
		return snapshot, nil
	}
	return m.capture(ctx, session, orders)
}

// Reset overwrites the persisted snapshot with the current order values.
func (m *SnapshotManager) Reset(ctx context.Context, session SessionID, orders []Order) (*Snapshot, error) {
	log.Info("Resetting snapshot", "session", session)
	return m.capture(ctx, session, orders)
}

func (m *SnapshotManager) capture(ctx context.Context, session SessionID, orders []Order) (*Snapshot, error) {
	snapshot := CaptureSnapshot(session, orders, m.now())
	if m.store == nil {
		m.memory[session.String()] = snapshot
	} else {
		if err := m.store.SaveSnapshot(ctx, snapshot); err != nil {
			// The in-memory baseline stays authoritative for this session.
			log.Warnf("Failed to persist snapshot for %s: %v", session, err)
		}
	}
	return snapshot, nil
}
