package sheet

import (
	"time"

	"github.com/charmbracelet/log"
)

// ChangeRecord describes an item whose upstream value drifted from the snapshot.
type ChangeRecord struct {
	PreviousQuantity float64   `json:"previousQuantity"`
	CurrentQuantity  float64   `json:"currentQuantity"`
	PreviousUnit     string    `json:"previousUnit"`
	CurrentUnit      string    `json:"currentUnit"`
	DetectedAt       time.Time `json:"detectedAt"`
}

// Current returns the upstream value the record reports.
func (c *ChangeRecord) Current() PortalValue {
	return PortalValue{Quantity: c.CurrentQuantity, Unit: c.CurrentUnit}
}

// Previous returns the snapshot value the record was computed against.
func (c *ChangeRecord) Previous() PortalValue {
	return PortalValue{Quantity: c.PreviousQuantity, Unit: c.PreviousUnit}
}

func (c *ChangeRecord) sameValues(previous, current PortalValue) bool {
	return c.Previous().Equal(previous) && c.Current().Equal(current)
}

// DetectChanges diffs the snapshot against current orders. Only keys present
// on both sides are compared; a key missing upstream is not a deletion.
func DetectChanges(snapshot *Snapshot, orders []Order, now time.Time) map[ItemKey]*ChangeRecord {
	return detectChanges(snapshot, orders, now, nil)
}

func detectChanges(snapshot *Snapshot, orders []Order, now time.Time, previous map[ItemKey]*ChangeRecord) map[ItemKey]*ChangeRecord {
	changes := make(map[ItemKey]*ChangeRecord)
	if snapshot == nil {
		return changes
	}
	for key, current := range aggregateOrders(orders) {
		entry, ok := snapshot.Entries[key]
		if !ok {
			continue
		}
		baseline := entry.Value()
		if baseline.Equal(current) {
			continue
		}
		if existing, ok := previous[key]; ok && existing.sameValues(baseline, current) {
			changes[key] = existing
			continue
		}
		changes[key] = &ChangeRecord{
			PreviousQuantity: baseline.Quantity,
			CurrentQuantity:  current.Quantity,
			PreviousUnit:     baseline.Unit,
			CurrentUnit:      current.Unit,
			DetectedAt:       now,
		}
	}
	return changes
}

// ChangeDetector recomputes changes on every upstream update while keeping
// the same *ChangeRecord for keys whose values did not move, so consumers can
// compare by pointer.
type ChangeDetector struct {
	changes map[ItemKey]*ChangeRecord
	now     func() time.Time
}

// NewChangeDetector creates an empty detector.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{changes: make(map[ItemKey]*ChangeRecord), now: time.Now}
}

// Detect recomputes the change set and reports whether it differs from the
// previous one.
func (d *ChangeDetector) Detect(snapshot *Snapshot, orders []Order) (map[ItemKey]*ChangeRecord, bool) {
	next := detectChanges(snapshot, orders, d.now(), d.changes)
	modified := len(next) != len(d.changes)
	if !modified {
		for key, record := range next {
			if d.changes[key] != record {
				modified = true
				break
			}
		}
	}
	if modified {
		log.Debug("Upstream changes recomputed", "changed_items", len(next))
	}
	d.changes = next
	return next, modified
}

// Changes returns the current change set.
func (d *ChangeDetector) Changes() map[ItemKey]*ChangeRecord {
	return d.changes
}

// Get returns the change record for key, if any.
func (d *ChangeDetector) Get(key ItemKey) (*ChangeRecord, bool) {
	record, ok := d.changes[key]
	return record, ok
}

// Clear drops every change record.
func (d *ChangeDetector) Clear() {
	d.changes = make(map[ItemKey]*ChangeRecord)
}
