package sheet

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// ConflictResolver combines the snapshot, upstream orders and the edit ledger
// into per-item states, and records the operator's accept/reject decisions.
// Item states are never stored; they are derived on every query.
type ConflictResolver struct {
	session     SessionID
	snapshots   *SnapshotManager
	snapshot    *Snapshot
	orders      []Order
	detector    *ChangeDetector
	ledger      *EditLedger
	resolutions map[ItemKey]Resolution
	author      string
	now         func() time.Time
}

// NewConflictResolver creates a resolver for one session.
func NewConflictResolver(session SessionID, snapshots *SnapshotManager, ledger *EditLedger) *ConflictResolver {
	if ledger == nil {
		ledger = NewEditLedger()
	}
	return &ConflictResolver{
		session:     session,
		snapshots:   snapshots,
		detector:    NewChangeDetector(),
		ledger:      ledger,
		resolutions: make(map[ItemKey]Resolution),
		now:         time.Now,
	}
}

// Open loads or captures the session baseline and runs the first diff.
func (r *ConflictResolver) Open(ctx context.Context, orders []Order) error {
	snapshot, err := r.snapshots.LoadOrCreate(ctx, r.session, orders)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	r.snapshot = snapshot
	r.Update(orders)
	return nil
}

// Update recomputes changes for new upstream orders and drops resolutions
// whose upstream value moved. It reports whether the change set differs.
func (r *ConflictResolver) Update(orders []Order) bool {
	r.orders = orders
	_, modified := r.detector.Detect(r.snapshot, orders)
	r.pruneResolutions()
	return modified
}

func (r *ConflictResolver) pruneResolutions() {
	for key, resolution := range r.resolutions {
		change, _ := r.detector.Get(key)
		if resolution.coversChange(change) {
			continue
		}
		log.Info("Upstream moved after resolution, reopening item", "key", key, "status", resolution.Status)
		delete(r.resolutions, key)
	}
}

// Snapshot returns the current baseline.
func (r *ConflictResolver) Snapshot() *Snapshot {
	return r.snapshot
}

// Ledger returns the edit ledger the resolver reads from.
func (r *ConflictResolver) Ledger() *EditLedger {
	return r.ledger
}

// Changes returns the live change set.
func (r *ConflictResolver) Changes() map[ItemKey]*ChangeRecord {
	return r.detector.Changes()
}

// IsItemChanged reports whether the upstream value of key differs from the snapshot.
func (r *ConflictResolver) IsItemChanged(key ItemKey) bool {
	_, ok := r.detector.Get(key)
	return ok
}

// GetItemChangeInfo returns the change, edit and resolution of key. ok is
// false when the item has no upstream change.
func (r *ConflictResolver) GetItemChangeInfo(key ItemKey) (ItemChangeInfo, bool) {
	change, ok := r.detector.Get(key)
	if !ok {
		return ItemChangeInfo{}, false
	}
	info := ItemChangeInfo{Key: key, Change: change, State: r.ItemState(key)}
	if edit, ok := r.ledger.GetEdit(key); ok {
		info.Edit = &edit
	}
	if resolution := r.activeResolution(key); resolution != nil {
		info.Resolution = resolution
	}
	return info, true
}

// activeResolution returns the resolution of key only while it still covers
// the live upstream value.
func (r *ConflictResolver) activeResolution(key ItemKey) *Resolution {
	resolution, ok := r.resolutions[key]
	if !ok {
		return nil
	}
	change, _ := r.detector.Get(key)
	if !resolution.coversChange(change) {
		return nil
	}
	return &resolution
}

// GetResolutionStatus returns the decision recorded for key, or
// ResolutionNone when there is none or the upstream value moved since.
func (r *ConflictResolver) GetResolutionStatus(key ItemKey) ResolutionStatus {
	if resolution := r.activeResolution(key); resolution != nil {
		return resolution.Status
	}
	return ResolutionNone
}

// ItemState derives the state of key.
func (r *ConflictResolver) ItemState(key ItemKey) ItemState {
	return ResolveState(r.ledger.IsEdited(key), r.IsItemChanged(key), r.activeResolution(key))
}

// ShouldShowConflictButtons reports whether the operator must decide on key.
func (r *ConflictResolver) ShouldShowConflictButtons(key ItemKey) bool {
	return r.ItemState(key) == StateConflict
}

// Conflicts lists every key currently in conflict.
func (r *ConflictResolver) Conflicts() []ItemChangeInfo {
	var conflicts []ItemChangeInfo
	for key := range r.detector.Changes() {
		if info, ok := r.GetItemChangeInfo(key); ok && info.State == StateConflict {
			conflicts = append(conflicts, info)
		}
	}
	sortChangeInfos(conflicts)
	return conflicts
}

// AcceptPortalChange takes the upstream value: the displayed value becomes
// newDisplayValue through a new edit, and the decision is pinned to the
// current upstream value.
func (r *ConflictResolver) AcceptPortalChange(key ItemKey, newDisplayValue string, newQty float64, newUnit string) (EditRecord, Resolution, error) {
	change, ok := r.detector.Get(key)
	if !ok {
		return EditRecord{}, Resolution{}, fmt.Errorf("accept %s: %w", key, ErrNoChange)
	}
	if newDisplayValue == "" {
		newDisplayValue = FormatQuantity(newQty, newUnit)
	}
	now := r.now()
	edit := EditRecord{
		Field:         FieldQuantity,
		OriginalValue: change.Previous().String(),
		EditedValue:   newDisplayValue,
		Author:        r.authorName(),
		Timestamp:     now,
	}
	if err := r.ledger.RecordEdit(key, edit); err != nil {
		return EditRecord{}, Resolution{}, fmt.Errorf("accept %s: %w", key, err)
	}
	edit, _ = r.ledger.GetFieldEdit(key, FieldQuantity)
	resolution := Resolution{
		Status:                  ResolutionAccepted,
		PortalValueAtResolution: change.Current(),
		DisplayValue:            newDisplayValue,
		Author:                  r.authorName(),
		ResolvedAt:              now,
	}
	r.resolutions[key] = resolution
	log.Info("Accepted portal change", "key", key, "value", newDisplayValue)
	return edit, resolution, nil
}

// RejectPortalChange keeps the operator's edit and pins the decision to the
// current upstream value.
func (r *ConflictResolver) RejectPortalChange(key ItemKey, currentDisplayValue string) (Resolution, error) {
	change, ok := r.detector.Get(key)
	if !ok {
		return Resolution{}, fmt.Errorf("reject %s: %w", key, ErrNoChange)
	}
	resolution := Resolution{
		Status:                  ResolutionRejected,
		PortalValueAtResolution: change.Current(),
		DisplayValue:            currentDisplayValue,
		Author:                  r.authorName(),
		ResolvedAt:              r.now(),
	}
	r.resolutions[key] = resolution
	log.Info("Rejected portal change", "key", key, "kept", currentDisplayValue)
	return resolution, nil
}

// MergeResolutions applies resolutions recorded by collaborators. The newer
// decision per key wins; stale ones are dropped straight away.
func (r *ConflictResolver) MergeResolutions(remote map[ItemKey]Resolution) {
	for key, resolution := range remote {
		if local, ok := r.resolutions[key]; ok && local.ResolvedAt.After(resolution.ResolvedAt) {
			continue
		}
		r.resolutions[key] = resolution
	}
	r.pruneResolutions()
}

// Resolutions returns a copy of the recorded resolutions.
func (r *ConflictResolver) Resolutions() map[ItemKey]Resolution {
	out := make(map[ItemKey]Resolution, len(r.resolutions))
	for key, resolution := range r.resolutions {
		out[key] = resolution
	}
	return out
}

// ResetSnapshot re-baselines the session on the current orders and forgets
// every change and resolution.
func (r *ConflictResolver) ResetSnapshot(ctx context.Context) error {
	snapshot, err := r.snapshots.Reset(ctx, r.session, r.orders)
	if err != nil {
		return fmt.Errorf("reset snapshot: %w", err)
	}
	r.snapshot = snapshot
	r.detector.Clear()
	r.resolutions = make(map[ItemKey]Resolution)
	r.detector.Detect(r.snapshot, r.orders)
	return nil
}

// DisplayQuantity returns what the sheet shows for key: the operator's
// quantity edit when present, otherwise the upstream value.
func (r *ConflictResolver) DisplayQuantity(key ItemKey, upstream PortalValue) string {
	if edit, ok := r.ledger.GetFieldEdit(key, FieldQuantity); ok {
		return edit.EditedValue
	}
	return upstream.String()
}

func (r *ConflictResolver) authorName() string {
	if r.author == "" {
		return "unknown"
	}
	return r.author
}

// ClearResolutions forgets every recorded decision.
func (r *ConflictResolver) ClearResolutions() {
	r.resolutions = make(map[ItemKey]Resolution)
}
