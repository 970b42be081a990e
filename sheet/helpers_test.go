package sheet

import (
	"context"
	"errors"
	"sync"
	"time"
)

var testSession = SessionID{Week: 42, Year: 2026, Day: "monday"}

// ordersWith returns one customer order whose sourdough line has quantity q.
func ordersWith(q float64) []Order {
	return []Order{
		{
			CustomerName: "Cafe Nord",
			Items: []OrderItem{
				{RecipeName: "Sourdough", Quantity: q, Unit: "kg", Category: "Bread", Packaging: "Crate"},
				{RecipeName: "Rye", Quantity: 4, Unit: "kg", Category: "Bread", Packaging: "Crate"},
			},
		},
		{
			CustomerName: "Hotel Vik",
			Items: []OrderItem{
				{RecipeName: "Croissant", Quantity: 40, Unit: "pcs", Category: "Pastry", Packaging: "Box"},
			},
		},
	}
}

var sourdoughKey = MakeKey("Sourdough", "Cafe Nord", "Cafe Nord")

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 10, 12, 6, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryStore is an in-memory LocalStore.
type memoryStore struct {
	mu          sync.Mutex
	snapshots   map[string]*Snapshot
	prefs       map[string]*Preferences
	loadErr     error
	saves       int
	prefsWrites int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: make(map[string]*Snapshot), prefs: make(map[string]*Preferences)}
}

func (s *memoryStore) LoadSnapshot(ctx context.Context, session SessionID) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	snapshot, ok := s.snapshots[session.String()]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (s *memoryStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Session.String()] = snapshot
	s.saves++
	return nil
}

func (s *memoryStore) LoadPreferences(ctx context.Context, session SessionID) (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs[session.String()], nil
}

func (s *memoryStore) SavePreferences(ctx context.Context, session SessionID, prefs *Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[session.String()] = prefs
	s.prefsWrites++
	return nil
}

// fakeAdapter is an in-memory SyncAdapter that records every write.
type fakeAdapter struct {
	mu          sync.Mutex
	blocks      []Block
	pushes      int
	ledger      LedgerSnapshot
	resolutions map[ItemKey]Resolution
	cleared     int
	locked      bool
	users       []string
	failPush    bool
	unavailable bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{ledger: make(LedgerSnapshot), resolutions: make(map[ItemKey]Resolution)}
}

var errUnavailable = errors.New("sync store unavailable")

func (a *fakeAdapter) LoadBlocks(ctx context.Context) ([]Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unavailable {
		return nil, errUnavailable
	}
	return cloneBlocks(a.blocks), nil
}

func (a *fakeAdapter) PushBlocks(ctx context.Context, blocks []Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failPush || a.unavailable {
		return errUnavailable
	}
	a.blocks = cloneBlocks(blocks)
	a.pushes++
	return nil
}

func (a *fakeAdapter) LoadEditLedger(ctx context.Context) (LedgerSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unavailable {
		return nil, errUnavailable
	}
	out := make(LedgerSnapshot)
	for key, fields := range a.ledger {
		out[key] = make(map[EditField]EditRecord)
		for field, record := range fields {
			out[key][field] = record
		}
	}
	return out, nil
}

func (a *fakeAdapter) RecordEdit(ctx context.Context, key ItemKey, record EditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ledger[key] == nil {
		a.ledger[key] = make(map[EditField]EditRecord)
	}
	a.ledger[key][record.Field] = record
	return nil
}

func (a *fakeAdapter) LoadResolutions(ctx context.Context) (map[ItemKey]Resolution, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unavailable {
		return nil, errUnavailable
	}
	out := make(map[ItemKey]Resolution, len(a.resolutions))
	for key, resolution := range a.resolutions {
		out[key] = resolution
	}
	return out, nil
}

func (a *fakeAdapter) RecordResolution(ctx context.Context, key ItemKey, resolution Resolution) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolutions[key] = resolution
	return nil
}

func (a *fakeAdapter) ClearResolutions(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolutions = make(map[ItemKey]Resolution)
	a.cleared++
	return nil
}

func (a *fakeAdapter) IsLocked(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked, nil
}

func (a *fakeAdapter) EditingUsers(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.users...), nil
}

func (a *fakeAdapter) pushCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pushes
}

// linearMeasurer reports perPoint pixels for every font size point.
func linearMeasurer(perPoint float64) Measurer {
	return MeasureFunc(func(ctx context.Context, block Block, fontSize int) (float64, error) {
		return float64(fontSize) * perPoint, nil
	})
}
