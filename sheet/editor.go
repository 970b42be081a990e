package sheet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zenibako/prodsheet-golang/messages"
)

// Page geometry defaults, in CSS pixels of an A4 page at 96 dpi.
const (
	DefaultPageHeight  = 1123
	DefaultPageWidth   = 794
	DefaultPagePadding = 20
)

// Editor is one operator's production sheet session. It ties the snapshot,
// change detection, edit ledger, conflict resolution, block layout and
// auto-fit together, and mirrors local changes to the sync store.
// An Editor is safe for concurrent use.
type Editor struct {
	mu            sync.Mutex
	session       SessionID
	author        string
	local         LocalStore
	adapter       SyncAdapter
	snapshots     *SnapshotManager
	ledger        *EditLedger
	resolver      *ConflictResolver
	layout        *BlockLayout
	generator     *BlockGenerator
	queue         *syncQueue
	measurer      Measurer
	usableHeight  float64
	retry         RetryPolicy
	phase         SyncPhase
	locked        bool
	closed        bool
	fitGeneration map[string]uint64
	now           func() time.Time
	upstream      func(ctx context.Context) ([]Order, error)
}

// NewEditor creates an editor for session. local and adapter may be nil, in
// which case the session is kept in memory or not shared, respectively.
func NewEditor(session SessionID, local LocalStore, adapter SyncAdapter) *Editor {
	e := &Editor{
		session:       session,
		local:         local,
		adapter:       adapter,
		snapshots:     NewSnapshotManager(local),
		ledger:        NewEditLedger(),
		generator:     NewBlockGenerator(),
		queue:         newSyncQueue(10 * time.Second),
		measurer:      NewTextMeasurer(DefaultPageWidth - 2*DefaultPagePadding),
		usableHeight:  DefaultPageHeight - DefaultPagePadding,
		retry:         RetryPolicy{Delay: 50 * time.Millisecond, MaxRetries: 20},
		fitGeneration: make(map[string]uint64),
		now:           time.Now,
	}
	e.resolver = NewConflictResolver(session, e.snapshots, e.ledger)
	e.layout = NewBlockLayout(e.pushBlocks)
	return e
}

// SetAuthor sets the name recorded on edits and resolutions.
func (e *Editor) SetAuthor(author string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.author = author
	e.resolver.author = author
}

// SetMeasurer replaces the measurer used by auto-fit and page status.
func (e *Editor) SetMeasurer(m Measurer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.measurer = m
}

// SetUsableHeight sets the page height available to a block, in pixels.
func (e *Editor) SetUsableHeight(height float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usableHeight = height
}

// SetRetryPolicy sets how auto-fit waits for unmeasurable content.
func (e *Editor) SetRetryPolicy(policy RetryPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retry = policy
}

// SetGenerator replaces the block generator used when no remote blocks exist.
func (e *Editor) SetGenerator(g *BlockGenerator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generator = g
}

// SetUpstreamSource sets how the editor re-reads the upstream orders when a
// collaborator reports that they moved. Without a source the report is ignored.
func (e *Editor) SetUpstreamSource(source func(ctx context.Context) ([]Order, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upstream = source
}

// SetClock replaces the time source, for tests.
func (e *Editor) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
	e.snapshots.now = now
	e.resolver.now = now
	e.resolver.detector.now = now
}

// Open runs the initialization phase: load or capture the snapshot, merge
// the remote blocks, edits and resolutions once, restore local preferences,
// then switch to the steady phase where local state is authoritative.
func (e *Editor) Open(ctx context.Context, orders []Order) error {
	if err := e.session.Validate(); err != nil {
		return fmt.Errorf("open session %s: %w", e.session, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrNotOpen
	}
	e.phase = PhaseInitializing
	log.Info("Opening production sheet", "session", e.session, "orders", len(orders))

	if err := e.resolver.Open(ctx, orders); err != nil {
		return err
	}

	remoteBlocks := e.mergeRemote(ctx)
	if len(remoteBlocks) > 0 {
		log.Info("Using blocks from sync store", "count", len(remoteBlocks))
		e.layout.Load(remoteBlocks, true)
		e.layout.Replace(ApplyEdits(remoteBlocks, e.ledger.Snapshot()))
	} else {
		generated, result := e.generator.GenerateBlocks(orders)
		for _, msg := range result.Errors {
			log.Warn("Block generation error", "error", msg)
		}
		e.layout.Load(nil, false)
		e.layout.Replace(ApplyEdits(generated, e.ledger.Snapshot()))
	}

	if e.local != nil {
		prefs, err := e.local.LoadPreferences(ctx, e.session)
		if err != nil {
			log.Warn("Ignoring unreadable layout preferences", "session", e.session, "error", err)
		} else {
			e.layout.ApplyPreferences(prefs)
		}
	}

	e.phase = PhaseSteady
	log.Info("Production sheet ready", "session", e.session, "blocks", len(e.layout.Blocks()), "changes", len(e.resolver.Changes()))
	return nil
}

// mergeRemote loads the shared state. An unavailable store leaves the
// session local-only.
func (e *Editor) mergeRemote(ctx context.Context) []Block {
	if e.adapter == nil {
		return nil
	}
	ledger, err := e.adapter.LoadEditLedger(ctx)
	if err != nil {
		log.Warn("Sync store unavailable, edits stay local", "error", err)
	} else {
		e.ledger.Merge(ledger)
	}
	resolutions, err := e.adapter.LoadResolutions(ctx)
	if err != nil {
		log.Warn("Could not load resolutions", "error", err)
	} else {
		e.resolver.MergeResolutions(resolutions)
	}
	if locked, err := e.adapter.IsLocked(ctx); err == nil {
		e.locked = locked
	}
	blocks, err := e.adapter.LoadBlocks(ctx)
	if err != nil {
		log.Warn("Could not load blocks from sync store", "error", err)
		return nil
	}
	return blocks
}

// Phase returns the current sync lifecycle phase.
func (e *Editor) Phase() SyncPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// SetLocked applies the externally supplied lock flag. While locked every
// mutating operation fails with ErrLocked.
func (e *Editor) SetLocked(locked bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked != locked {
		log.Info("Sheet lock changed", "locked", locked)
	}
	e.locked = locked
}

// IsLocked reports the lock flag.
func (e *Editor) IsLocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked
}

func (e *Editor) checkMutable() error {
	if e.closed || e.phase != PhaseSteady {
		return ErrNotOpen
	}
	if e.locked {
		return ErrLocked
	}
	return nil
}

// UpdateUpstream feeds new upstream orders. It reports whether the set of
// changed items differs from before.
func (e *Editor) UpdateUpstream(orders []Order) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.Update(orders)
}

// RecordEdit stores an operator edit of a displayed value and applies it to
// every item carrying key.
func (e *Editor) RecordEdit(key ItemKey, field EditField, originalValue, editedValue string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMutable(); err != nil {
		return err
	}
	record := EditRecord{
		Field:         field,
		OriginalValue: originalValue,
		EditedValue:   editedValue,
		Author:        e.authorName(),
		Timestamp:     e.now(),
	}
	if err := e.ledger.RecordEdit(key, record); err != nil {
		return fmt.Errorf("record edit of %s: %w", key, err)
	}
	stored, _ := e.ledger.GetFieldEdit(key, field)
	e.pushEdit(key, stored)

	patch, err := patchForEdit(field, editedValue)
	if err != nil {
		log.Warn("Edit recorded but not applied to layout", "key", key, "error", err)
		return nil
	}
	e.layout.UpdateItems(key, patch)
	return nil
}

// IsEdited reports whether key carries a manual edit.
func (e *Editor) IsEdited(key ItemKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.IsEdited(key)
}

// GetEdit returns the latest edit of key.
func (e *Editor) GetEdit(key ItemKey) (EditRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.GetEdit(key)
}

// IsItemChanged reports whether the upstream value of key drifted.
func (e *Editor) IsItemChanged(key ItemKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.IsItemChanged(key)
}

// GetItemChangeInfo returns the change details of key.
func (e *Editor) GetItemChangeInfo(key ItemKey) (ItemChangeInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.GetItemChangeInfo(key)
}

// GetResolutionStatus returns the live decision on key.
func (e *Editor) GetResolutionStatus(key ItemKey) ResolutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.GetResolutionStatus(key)
}

// ItemState returns the derived state of key.
func (e *Editor) ItemState(key ItemKey) ItemState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.ItemState(key)
}

// ShouldShowConflictButtons reports whether key awaits a decision.
func (e *Editor) ShouldShowConflictButtons(key ItemKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.ShouldShowConflictButtons(key)
}

// Conflicts lists the items awaiting a decision.
func (e *Editor) Conflicts() []ItemChangeInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver.Conflicts()
}

// AcceptPortalChange resolves a conflict in favor of the upstream value.
func (e *Editor) AcceptPortalChange(key ItemKey, newDisplayValue string, newQty float64, newUnit string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMutable(); err != nil {
		return err
	}
	edit, resolution, err := e.resolver.AcceptPortalChange(key, newDisplayValue, newQty, newUnit)
	if err != nil {
		return err
	}
	e.pushEdit(key, edit)
	e.pushResolution(key, resolution)
	e.layout.UpdateItems(key, ItemPatch{Quantity: &newQty, Unit: &newUnit})
	return nil
}

// RejectPortalChange resolves a conflict in favor of the manual edit.
func (e *Editor) RejectPortalChange(key ItemKey, currentDisplayValue string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMutable(); err != nil {
		return err
	}
	resolution, err := e.resolver.RejectPortalChange(key, currentDisplayValue)
	if err != nil {
		return err
	}
	e.pushResolution(key, resolution)
	return nil
}

// ResetSnapshot re-baselines the session on the current upstream orders and
// clears every change and resolution, locally and in the sync store.
func (e *Editor) ResetSnapshot(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMutable(); err != nil {
		return err
	}
	if err := e.resolver.ResetSnapshot(ctx); err != nil {
		return err
	}
	if e.adapter != nil {
		adapter := e.adapter
		e.queue.enqueue(syncJob{
			name: "clear resolutions",
			run:  func(ctx context.Context) error { return adapter.ClearResolutions(ctx) },
		})
	}
	return nil
}

// SetFontSize changes a block's font size by delta.
func (e *Editor) SetFontSize(blockID string, delta int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMutable(); err != nil {
		return err
	}
	return e.layout.SetFontSize(blockID, delta)
}

// Reorder moves a block from one position to another.
func (e *Editor) Reorder(from, to int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMutable(); err != nil {
		return err
	}
	e.layout.Reorder(from, to)
	return nil
}

// EditContent edits a block's title, subtitle or one of its items.
func (e *Editor) EditContent(blockID string, edit ContentEdit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMutable(); err != nil {
		return err
	}
	return e.layout.EditContent(blockID, edit)
}

// Blocks returns a copy of the current block collection.
func (e *Editor) Blocks() []Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneBlocks(e.layout.Blocks())
}

// Item returns the first laid-out item carrying key.
func (e *Editor) Item(key ItemKey) (Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layout.FindItem(key)
}

// DisplayValue is the quantity the sheet shows for key after conflict
// handling: the manual edit if any, otherwise the live upstream value.
func (e *Editor) DisplayValue(key ItemKey) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayValue(key, aggregateOrders(e.resolver.orders))
}

// displayValue falls back to the laid-out item for keys that are not order
// lines, such as items of category blocks.
func (e *Editor) displayValue(key ItemKey, upstream map[ItemKey]PortalValue) string {
	if value, ok := upstream[key]; ok {
		return e.resolver.DisplayQuantity(key, value)
	}
	if item, found := e.layout.FindItem(key); found {
		return e.itemDisplayValue(item, upstream)
	}
	return e.resolver.DisplayQuantity(key, PortalValue{})
}

// itemDisplayValue resolves one laid-out item. An item without its own edit
// shows whatever its order line shows.
func (e *Editor) itemDisplayValue(item Item, upstream map[ItemKey]PortalValue) string {
	if edit, ok := e.ledger.GetFieldEdit(item.Key, FieldQuantity); ok {
		return edit.EditedValue
	}
	if item.LineKey != "" && item.LineKey != item.Key {
		return e.displayValue(item.LineKey, upstream)
	}
	if value, ok := upstream[item.Key]; ok {
		return value.String()
	}
	return FormatQuantity(item.Quantity, item.Unit)
}

func (e *Editor) itemState(item Item) ItemState {
	if item.LineKey != "" && !e.ledger.IsEdited(item.Key) {
		return e.resolver.ItemState(item.LineKey)
	}
	return e.resolver.ItemState(item.Key)
}

// resolveDisplay returns a copy of block whose items carry their display
// values, with group totals recomputed from them.
func resolveDisplay(block Block, display map[ItemKey]string) Block {
	out := block.Clone()
	out.forEachItem(func(item *Item) {
		value, ok := display[item.Key]
		if !ok {
			return
		}
		item.Display = value
		if quantity, unit, err := ParseDisplayValue(value); err == nil {
			item.Quantity = quantity
			if unit != "" {
				item.Unit = unit
			}
		}
	})
	out.recomputeTotals()
	return out
}

// RenderedBlock is a block ready for printing. Block carries the resolved
// quantities and is what Status was measured on.
type RenderedBlock struct {
	Block         Block
	DisplayValues map[ItemKey]string
	States        map[ItemKey]ItemState // items not in StateUnmodified
	Status        PageStatus
	StatusErr     error
}

// Render resolves display values and measures every block at its current
// font size.
func (e *Editor) Render(ctx context.Context) []RenderedBlock {
	e.mu.Lock()
	blocks := cloneBlocks(e.layout.Blocks())
	upstream := aggregateOrders(e.resolver.orders)
	rendered := make([]RenderedBlock, len(blocks))
	for i, block := range blocks {
		rendered[i] = e.renderBlock(block, upstream)
	}
	measurer, usable := e.measurer, e.usableHeight
	e.mu.Unlock()

	for i := range rendered {
		rendered[i].Status, rendered[i].StatusErr = pageStatus(ctx, measurer, rendered[i].Block, usable)
	}
	return rendered
}

// renderBlock resolves the display values and states of one block. It runs
// with e.mu held.
func (e *Editor) renderBlock(block Block, upstream map[ItemKey]PortalValue) RenderedBlock {
	r := RenderedBlock{
		DisplayValues: make(map[ItemKey]string),
		States:        make(map[ItemKey]ItemState),
	}
	block.forEachItem(func(item *Item) {
		r.DisplayValues[item.Key] = e.itemDisplayValue(*item, upstream)
		if state := e.itemState(*item); state != StateUnmodified {
			r.States[item.Key] = state
		}
	})
	r.Block = resolveDisplay(block, r.DisplayValues)
	return r
}

// PageStatus measures a block, as it would print, at its current font size.
func (e *Editor) PageStatus(ctx context.Context, blockID string) (PageStatus, error) {
	e.mu.Lock()
	block, ok := e.layout.Block(blockID)
	var r RenderedBlock
	if ok {
		r = e.renderBlock(block, aggregateOrders(e.resolver.orders))
	}
	measurer, usable := e.measurer, e.usableHeight
	e.mu.Unlock()
	if !ok {
		return PageStatus{}, fmt.Errorf("page status of %s: %w", blockID, ErrBlockNotFound)
	}
	return pageStatus(ctx, measurer, r.Block, usable)
}

func pageStatus(ctx context.Context, m Measurer, block Block, usable float64) (PageStatus, error) {
	if m == nil {
		return PageStatus{}, ErrNotMeasurable
	}
	height, err := m.Measure(ctx, block, block.FontSize)
	if err != nil {
		return PageStatus{}, err
	}
	if height <= 0 {
		return PageStatus{}, ErrNotMeasurable
	}
	return ComputePageStatus(height, usable), nil
}

// EditingUsers lists the collaborators currently in the session.
func (e *Editor) EditingUsers(ctx context.Context) ([]string, error) {
	if e.adapter == nil {
		return nil, nil
	}
	users, err := e.adapter.EditingUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list editing users: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

// HandleRemoteUpdate reacts to a change published by a collaborator. Block
// pushes are ignored once the session is steady: the first load wins and
// local edits are authoritative from then on.
func (e *Editor) HandleRemoteUpdate(ctx context.Context, update messages.Update) error {
	if e.adapter == nil {
		return nil
	}
	log.Debug("Remote update received", "type", update.Type, "key", update.Key, "author", update.Author)

	switch update.Type {
	case messages.MsgBlocksPushed:
		log.Debug("Ignoring remote block push", "phase", e.Phase())
	case messages.MsgEditRecorded:
		ledger, err := e.adapter.LoadEditLedger(ctx)
		if err != nil {
			return fmt.Errorf("reload edits: %w", err)
		}
		e.mu.Lock()
		e.ledger.Merge(ledger)
		e.applyMergedEdits(ledger)
		e.mu.Unlock()
	case messages.MsgResolutionRecorded:
		resolutions, err := e.adapter.LoadResolutions(ctx)
		if err != nil {
			return fmt.Errorf("reload resolutions: %w", err)
		}
		e.mu.Lock()
		e.resolver.MergeResolutions(resolutions)
		e.mu.Unlock()
	case messages.MsgResolutionsCleared:
		e.mu.Lock()
		e.resolver.ClearResolutions()
		e.mu.Unlock()
	case messages.MsgLockChanged:
		locked, err := e.adapter.IsLocked(ctx)
		if err != nil {
			return fmt.Errorf("reload lock: %w", err)
		}
		e.SetLocked(locked)
	case messages.MsgUpstreamOrdersMoved:
		e.mu.Lock()
		source := e.upstream
		e.mu.Unlock()
		if source == nil {
			log.Debug("No upstream source, ignoring moved orders")
			return nil
		}
		orders, err := source(ctx)
		if err != nil {
			return fmt.Errorf("reload upstream orders: %w", err)
		}
		if e.UpdateUpstream(orders) {
			log.Info("Upstream orders changed", "author", update.Author)
		}
	case messages.MsgPresenceChanged:
		// Presence is read on demand.
	default:
		log.Warn("Unknown remote update", "type", update.Type)
	}
	return nil
}

// applyMergedEdits projects the remote records that won the merge onto the
// layout. It runs with e.mu held.
func (e *Editor) applyMergedEdits(remote LedgerSnapshot) {
	won := make(LedgerSnapshot)
	for key, fields := range remote {
		for field, record := range fields {
			current, ok := e.ledger.GetFieldEdit(key, field)
			if !ok || !current.Timestamp.Equal(record.Timestamp) || current.EditedValue != record.EditedValue {
				continue
			}
			if won[key] == nil {
				won[key] = make(map[EditField]EditRecord)
			}
			won[key][field] = current
		}
	}
	if len(won) == 0 || e.phase != PhaseSteady {
		return
	}
	e.layout.Replace(ApplyEdits(e.layout.Blocks(), won))
}

// Flush waits until every queued sync write has been attempted.
func (e *Editor) Flush() {
	e.queue.flush()
}

// Close flushes pending writes and stops the editor.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.phase = PhaseClosed
	e.mu.Unlock()
	e.queue.close()
}

// pushBlocks is the layout's sink; it runs with e.mu held.
func (e *Editor) pushBlocks(blocks []Block) {
	if e.closed {
		return
	}
	if e.adapter != nil {
		adapter, layout := e.adapter, e.layout
		e.queue.enqueue(syncJob{
			name:    "push blocks",
			run:     func(ctx context.Context) error { return adapter.PushBlocks(ctx, blocks) },
			onError: func(error) { layout.MarkDirty() },
		})
	}
	if e.local != nil {
		local, session := e.local, e.session
		prefs := preferencesOf(blocks)
		e.queue.enqueue(syncJob{
			name: "save preferences",
			run:  func(ctx context.Context) error { return local.SavePreferences(ctx, session, prefs) },
		})
	}
}

func (e *Editor) pushEdit(key ItemKey, record EditRecord) {
	if e.adapter == nil || e.closed {
		return
	}
	adapter := e.adapter
	e.queue.enqueue(syncJob{
		name: "record edit",
		run:  func(ctx context.Context) error { return adapter.RecordEdit(ctx, key, record) },
	})
}

func (e *Editor) pushResolution(key ItemKey, resolution Resolution) {
	if e.adapter == nil || e.closed {
		return
	}
	adapter := e.adapter
	e.queue.enqueue(syncJob{
		name: "record resolution",
		run:  func(ctx context.Context) error { return adapter.RecordResolution(ctx, key, resolution) },
	})
}

func (e *Editor) authorName() string {
	if e.author == "" {
		return "unknown"
	}
	return e.author
}

func patchForEdit(field EditField, value string) (ItemPatch, error) {
	switch field {
	case FieldQuantity:
		quantity, unit, err := ParseDisplayValue(value)
		if err != nil {
			return ItemPatch{}, err
		}
		patch := ItemPatch{Quantity: &quantity}
		if unit != "" {
			patch.Unit = &unit
		}
		return patch, nil
	case FieldName:
		return ItemPatch{RecipeName: &value}, nil
	case FieldCustomer:
		return ItemPatch{CustomerName: &value}, nil
	default:
		return ItemPatch{Notes: &value}, nil
	}
}
