package sheet

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zenibako/prodsheet-golang/messages"
)

func newTestEditor(t *testing.T, adapter *fakeAdapter, local *memoryStore) (*Editor, *fixedClock) {
	t.Helper()
	clock := newFixedClock()
	var syncAdapter SyncAdapter
	if adapter != nil {
		syncAdapter = adapter
	}
	var localStore LocalStore
	if local != nil {
		localStore = local
	}
	editor := NewEditor(testSession, localStore, syncAdapter)
	editor.SetAuthor("ana")
	editor.SetClock(clock.Now)
	editor.SetMeasurer(linearMeasurer(50))
	t.Cleanup(editor.Close)
	return editor, clock
}

func TestEditorOpenGeneratesAndPushes(t *testing.T) {
	adapter := newFakeAdapter()
	local := newMemoryStore()
	editor, _ := newTestEditor(t, adapter, local)

	if editor.Phase() != PhaseClosed {
		t.Errorf("expected closed before Open, got %s", editor.Phase())
	}
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.Flush()

	if editor.Phase() != PhaseSteady {
		t.Errorf("expected steady after Open, got %s", editor.Phase())
	}
	if len(editor.Blocks()) != 6 {
		t.Errorf("expected 6 generated blocks, got %d", len(editor.Blocks()))
	}
	if adapter.pushCount() != 1 {
		t.Errorf("expected the generated blocks to be pushed once, got %d", adapter.pushCount())
	}
	if local.saves != 1 {
		t.Errorf("expected the snapshot to be saved, got %d saves", local.saves)
	}
}

func TestEditorOpenUsesRemoteBlocks(t *testing.T) {
	adapter := newFakeAdapter()
	remote, _ := NewBlockGenerator().GenerateBlocks(ordersWith(10))
	remote[0].Title = "Cafe Nord (shared)"
	remote[0].FontSize = 12
	adapter.blocks = remote

	editor, _ := newTestEditor(t, adapter, newMemoryStore())
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.Flush()

	blocks := editor.Blocks()
	if blocks[0].Title != "Cafe Nord (shared)" || blocks[0].FontSize != 12 {
		t.Errorf("expected the shared blocks, got %q at %d", blocks[0].Title, blocks[0].FontSize)
	}
	if adapter.pushCount() != 0 {
		t.Errorf("loaded blocks must not be pushed back, got %d pushes", adapter.pushCount())
	}
}

func TestEditorOpenMergesRemoteEdits(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.ledger[sourdoughKey] = map[EditField]EditRecord{
		FieldQuantity: {Field: FieldQuantity, OriginalValue: "10 kg", EditedValue: "15 kg", Author: "ben", Timestamp: time.Now()},
	}

	editor, _ := newTestEditor(t, adapter, newMemoryStore())
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !editor.IsEdited(sourdoughKey) {
		t.Error("expected the remote edit to be merged")
	}
	if got := editor.DisplayValue(sourdoughKey); got != "15 kg" {
		t.Errorf("expected 15 kg, got %q", got)
	}
	item, _ := editor.layout.FindItem(sourdoughKey)
	if item.Quantity != 15 {
		t.Errorf("expected the edit applied to the block, got %v", item.Quantity)
	}
}

func TestEditorWorksWithoutSyncStore(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.unavailable = true
	editor, _ := newTestEditor(t, adapter, newMemoryStore())

	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("an unavailable sync store must not fail Open: %v", err)
	}
	if err := editor.RecordEdit(sourdoughKey, FieldQuantity, "10 kg", "11 kg"); err != nil {
		t.Fatalf("local edits must keep working: %v", err)
	}
	editor.Flush()
	if got := editor.DisplayValue(sourdoughKey); got != "11 kg" {
		t.Errorf("expected 11 kg, got %q", got)
	}
}

func TestEditorConflictScenario(t *testing.T) {
	adapter := newFakeAdapter()
	editor, _ := newTestEditor(t, adapter, newMemoryStore())
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !editor.UpdateUpstream(ordersWith(12)) {
		t.Error("expected the change set to be modified")
	}
	if err := editor.RecordEdit(sourdoughKey, FieldQuantity, "10 kg", "15 kg"); err != nil {
		t.Fatalf("RecordEdit failed: %v", err)
	}

	if !editor.IsItemChanged(sourdoughKey) || !editor.IsEdited(sourdoughKey) {
		t.Fatal("expected the item to be changed and edited")
	}
	if editor.GetResolutionStatus(sourdoughKey) != ResolutionNone {
		t.Error("expected no resolution yet")
	}
	if !editor.ShouldShowConflictButtons(sourdoughKey) {
		t.Error("expected conflict buttons")
	}
	if got := editor.DisplayValue(sourdoughKey); got != "15 kg" {
		t.Errorf("expected the edit to be displayed, got %q", got)
	}

	if err := editor.AcceptPortalChange(sourdoughKey, "12 kg", 12, "kg"); err != nil {
		t.Fatalf("AcceptPortalChange failed: %v", err)
	}
	if editor.GetResolutionStatus(sourdoughKey) != ResolutionAccepted {
		t.Errorf("expected accepted, got %q", editor.GetResolutionStatus(sourdoughKey))
	}
	if got := editor.DisplayValue(sourdoughKey); got != "12 kg" {
		t.Errorf("expected 12 kg, got %q", got)
	}
	if state := editor.ItemState(sourdoughKey); state != StateAccepted {
		t.Errorf("expected accepted state, got %s", state)
	}

	editor.Flush()
	if got := adapter.ledger[sourdoughKey][FieldQuantity].EditedValue; got != "12 kg" {
		t.Errorf("expected the accept edit in the sync store, got %q", got)
	}
	if got := adapter.resolutions[sourdoughKey].Status; got != ResolutionAccepted {
		t.Errorf("expected the resolution in the sync store, got %q", got)
	}
	if got := adapter.blocks[0].Items[0].Quantity; got != 12 {
		t.Errorf("expected the pushed block to show 12, got %v", got)
	}
}

func TestEditorRejectThenUpstreamMoves(t *testing.T) {
	editor, _ := newTestEditor(t, newFakeAdapter(), newMemoryStore())
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.UpdateUpstream(ordersWith(12))
	_ = editor.RecordEdit(sourdoughKey, FieldQuantity, "10 kg", "15 kg")

	if err := editor.RejectPortalChange(sourdoughKey, "15 kg"); err != nil {
		t.Fatalf("RejectPortalChange failed: %v", err)
	}
	if got := editor.DisplayValue(sourdoughKey); got != "15 kg" {
		t.Errorf("expected 15 kg to stay, got %q", got)
	}
	if editor.GetResolutionStatus(sourdoughKey) != ResolutionRejected {
		t.Error("expected rejected")
	}

	editor.UpdateUpstream(ordersWith(13))
	if editor.GetResolutionStatus(sourdoughKey) != ResolutionNone {
		t.Error("expected the conflict to reopen after upstream moved")
	}
	if len(editor.Conflicts()) != 1 {
		t.Errorf("expected one open conflict, got %d", len(editor.Conflicts()))
	}
}

func TestEditorApplyConflictChoices(t *testing.T) {
	editor, _ := newTestEditor(t, nil, nil)
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.UpdateUpstream(ordersWith(12))
	_ = editor.RecordEdit(sourdoughKey, FieldQuantity, "10 kg", "15 kg")

	if err := editor.ApplyConflictChoices(map[ItemKey]ConflictChoice{sourdoughKey: ChoiceSkip}); err != nil {
		t.Fatalf("ApplyConflictChoices failed: %v", err)
	}
	if !editor.ShouldShowConflictButtons(sourdoughKey) {
		t.Error("a skipped conflict stays open")
	}

	if err := editor.ApplyConflictChoices(map[ItemKey]ConflictChoice{sourdoughKey: ChoiceAcceptPortal}); err != nil {
		t.Fatalf("ApplyConflictChoices failed: %v", err)
	}
	if got := editor.DisplayValue(sourdoughKey); got != "12 kg" {
		t.Errorf("expected 12 kg, got %q", got)
	}

	if err := editor.ApplyConflictChoices(map[ItemKey]ConflictChoice{sourdoughKey: "maybe"}); err == nil {
		t.Error("expected an error for an unknown choice")
	}
}

func TestEditorResetSnapshot(t *testing.T) {
	adapter := newFakeAdapter()
	editor, _ := newTestEditor(t, adapter, newMemoryStore())
	ctx := context.Background()
	if err := editor.Open(ctx, ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.UpdateUpstream(ordersWith(12))
	_ = editor.RecordEdit(sourdoughKey, FieldQuantity, "10 kg", "15 kg")
	_ = editor.RejectPortalChange(sourdoughKey, "15 kg")

	if err := editor.ResetSnapshot(ctx); err != nil {
		t.Fatalf("ResetSnapshot failed: %v", err)
	}
	editor.Flush()

	if editor.IsItemChanged(sourdoughKey) {
		t.Error("no item is changed right after a reset")
	}
	if editor.GetResolutionStatus(sourdoughKey) != ResolutionNone {
		t.Error("resolutions are gone after a reset")
	}
	if adapter.cleared != 1 {
		t.Errorf("expected shared resolutions to be cleared, got %d", adapter.cleared)
	}
	if state := editor.ItemState(sourdoughKey); state != StateEditedOnly {
		t.Errorf("edits survive a reset, got %s", state)
	}
}

func TestEditorLocked(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.locked = true
	editor, _ := newTestEditor(t, adapter, newMemoryStore())
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	id := editor.Blocks()[0].ID

	if !editor.IsLocked() {
		t.Fatal("expected the lock from the sync store")
	}
	checks := map[string]error{
		"RecordEdit":  editor.RecordEdit(sourdoughKey, FieldQuantity, "10 kg", "11 kg"),
		"SetFontSize": editor.SetFontSize(id, 1),
		"Reorder":     editor.Reorder(0, 1),
		"EditContent": editor.EditContent(id, ContentEdit{Field: ContentTitle, Value: "x"}),
		"Reset":       editor.ResetSnapshot(context.Background()),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrLocked) {
			t.Errorf("%s: expected ErrLocked, got %v", name, err)
		}
	}
	if _, err := editor.AutoFit(context.Background(), id); !errors.Is(err, ErrLocked) {
		t.Errorf("AutoFit: expected ErrLocked, got %v", err)
	}

	editor.SetLocked(false)
	if err := editor.SetFontSize(id, 1); err != nil {
		t.Errorf("expected edits to work after unlocking, got %v", err)
	}
}

func TestEditorNotOpen(t *testing.T) {
	editor, _ := newTestEditor(t, nil, nil)

	if err := editor.RecordEdit(sourdoughKey, FieldQuantity, "10 kg", "11 kg"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}

	invalid := NewEditor(SessionID{Week: 60, Year: 2026, Day: "monday"}, nil, nil)
	defer invalid.Close()
	if err := invalid.Open(context.Background(), nil); err == nil {
		t.Error("expected an error for an invalid session")
	}
}

func TestEditorRetriesFailedPush(t *testing.T) {
	adapter := newFakeAdapter()
	editor, _ := newTestEditor(t, adapter, newMemoryStore())
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.Flush()
	id := editor.Blocks()[0].ID

	adapter.mu.Lock()
	adapter.failPush = true
	adapter.mu.Unlock()
	if err := editor.SetFontSize(id, 2); err != nil {
		t.Fatalf("SetFontSize failed: %v", err)
	}
	editor.Flush()

	adapter.mu.Lock()
	adapter.failPush = false
	adapter.mu.Unlock()
	// No content change, but the last push failed.
	if err := editor.SetFontSize(id, 0); err != nil {
		t.Fatalf("SetFontSize failed: %v", err)
	}
	editor.Flush()

	if adapter.pushCount() != 2 {
		t.Errorf("expected the failed push to be retried, got %d pushes", adapter.pushCount())
	}
	if adapter.blocks[0].FontSize != 18 {
		t.Errorf("expected the retried push to carry size 18, got %d", adapter.blocks[0].FontSize)
	}
}

func TestEditorPreferencesSurviveReopen(t *testing.T) {
	local := newMemoryStore()
	ctx := context.Background()

	first, _ := newTestEditor(t, nil, local)
	if err := first.Open(ctx, ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	blocks := first.Blocks()
	moved := blocks[len(blocks)-1]
	movedID, wantSize := moved.ID, moved.FontSize-4
	_ = first.Reorder(len(blocks)-1, 0)
	_ = first.SetFontSize(movedID, -4)
	first.Close()

	second, _ := newTestEditor(t, nil, local)
	if err := second.Open(ctx, ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got := second.Blocks()[0]
	if got.ID != movedID || got.FontSize != wantSize {
		t.Errorf("expected %s first at size %d, got %s at %d", movedID, wantSize, got.ID, got.FontSize)
	}
}

func TestEditorRender(t *testing.T) {
	editor, _ := newTestEditor(t, nil, nil)
	editor.SetMeasurer(linearMeasurer(100))
	if err := editor.Open(context.Background(), ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.UpdateUpstream(ordersWith(12))

	rendered := editor.Render(context.Background())
	if len(rendered) != 6 {
		t.Fatalf("expected 6 rendered blocks, got %d", len(rendered))
	}
	first := rendered[0]
	if first.DisplayValues[sourdoughKey] != "12 kg" {
		t.Errorf("expected the live upstream value, got %q", first.DisplayValues[sourdoughKey])
	}
	if first.States[sourdoughKey] != StateChangedOnly {
		t.Errorf("expected changed only, got %q", first.States[sourdoughKey])
	}
	// 16pt * 100px = 1600px over 1103px.
	if !first.Status.IsOverflowing || first.Status.PageCount != 2 {
		t.Errorf("expected an overflow onto 2 pages, got %+v", first.Status)
	}

	status, err := editor.PageStatus(context.Background(), first.Block.ID)
	if err != nil || status != first.Status {
		t.Errorf("PageStatus = %+v, %v", status, err)
	}
	if _, err := editor.PageStatus(context.Background(), "missing"); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestEditorHandleRemoteUpdate(t *testing.T) {
	adapter := newFakeAdapter()
	editor, clock := newTestEditor(t, adapter, newMemoryStore())
	ctx := context.Background()
	if err := editor.Open(ctx, ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.UpdateUpstream(ordersWith(12))

	adapter.mu.Lock()
	adapter.ledger[sourdoughKey] = map[EditField]EditRecord{
		FieldQuantity: {Field: FieldQuantity, EditedValue: "14 kg", Author: "ben", Timestamp: clock.Now()},
	}
	adapter.resolutions[sourdoughKey] = Resolution{
		Status:                  ResolutionRejected,
		PortalValueAtResolution: PortalValue{Quantity: 12, Unit: "kg"},
		Author:                  "ben",
		ResolvedAt:              clock.Now(),
	}
	adapter.locked = true
	adapter.mu.Unlock()

	for _, msgType := range []messages.MessageType{
		messages.MsgEditRecorded,
		messages.MsgResolutionRecorded,
		messages.MsgBlocksPushed,
		messages.MsgPresenceChanged,
	} {
		if err := editor.HandleRemoteUpdate(ctx, messages.Update{Type: msgType, Author: "ben"}); err != nil {
			t.Fatalf("HandleRemoteUpdate(%s) failed: %v", msgType, err)
		}
	}

	if got := editor.DisplayValue(sourdoughKey); got != "14 kg" {
		t.Errorf("expected ben's edit, got %q", got)
	}
	if editor.GetResolutionStatus(sourdoughKey) != ResolutionRejected {
		t.Error("expected ben's rejection")
	}

	if err := editor.HandleRemoteUpdate(ctx, messages.Update{Type: messages.MsgResolutionsCleared}); err != nil {
		t.Fatalf("HandleRemoteUpdate failed: %v", err)
	}
	if editor.GetResolutionStatus(sourdoughKey) != ResolutionNone {
		t.Error("expected resolutions to be cleared")
	}

	if err := editor.HandleRemoteUpdate(ctx, messages.Update{Type: messages.MsgLockChanged}); err != nil {
		t.Fatalf("HandleRemoteUpdate failed: %v", err)
	}
	if !editor.IsLocked() {
		t.Error("expected the lock to be picked up")
	}
}

func TestEditorEditingUsers(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.users = []string{"ben", "ana"}
	editor, _ := newTestEditor(t, adapter, nil)

	users, err := editor.EditingUsers(context.Background())
	if err != nil {
		t.Fatalf("EditingUsers failed: %v", err)
	}
	if len(users) != 2 || users[0] != "ana" {
		t.Errorf("expected sorted users, got %v", users)
	}
}

func TestEditorRenderResolvesPrintedQuantities(t *testing.T) {
	editor, _ := newTestEditor(t, nil, nil)
	editor.SetMeasurer(NewTextMeasurer(DefaultPageWidth - 2*DefaultPagePadding))
	ctx := context.Background()
	if err := editor.Open(ctx, ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	editor.UpdateUpstream(ordersWith(12))

	out := WriteRendered("Production sheet", editor.Render(ctx), "")
	for _, want := range []string{
		"12 kg  Sourdough",
		"Sourdough  [total 12 kg]",
		"  12 kg  Cafe Nord / Sourdough",
		"Cafe Nord  [total 16 kg]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "10 kg") {
		t.Errorf("the baseline quantity must not be printed:\n%s", out)
	}

	if err := editor.RecordEdit(sourdoughKey, FieldQuantity, "12 kg", "15 kg"); err != nil {
		t.Fatalf("RecordEdit failed: %v", err)
	}
	rendered := editor.Render(ctx)
	out = WriteRendered("Production sheet", rendered, "")
	if !strings.Contains(out, "Sourdough  [total 15 kg]") || !strings.Contains(out, "Cafe Nord  [total 19 kg]") {
		t.Errorf("category totals must follow the edited line:\n%s", out)
	}

	breadKey := MakeKey("Sourdough", "Cafe Nord", "Bread")
	for _, r := range rendered {
		if r.Block.Title != "Bread" {
			continue
		}
		if r.DisplayValues[breadKey] != "15 kg" || r.States[breadKey] != StateConflict {
			t.Errorf("expected the category item to mirror its line, got %q %q", r.DisplayValues[breadKey], r.States[breadKey])
		}
		height, _ := NewTextMeasurer(DefaultPageWidth-2*DefaultPagePadding).Measure(ctx, r.Block, r.Block.FontSize)
		if r.Status.Height != height {
			t.Errorf("status must be measured on the printed block, got %v want %v", r.Status.Height, height)
		}
		status, err := editor.PageStatus(ctx, r.Block.ID)
		if err != nil || status != r.Status {
			t.Errorf("PageStatus = %+v, %v, want %+v", status, err, r.Status)
		}
	}
}

func TestEditorRemoteEditsReachLayout(t *testing.T) {
	adapter := newFakeAdapter()
	editor, clock := newTestEditor(t, adapter, newMemoryStore())
	ctx := context.Background()
	if err := editor.Open(ctx, ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	clock.Advance(time.Hour)
	if err := editor.RecordEdit(sourdoughKey, FieldContent, "", "no salt"); err != nil {
		t.Fatalf("RecordEdit failed: %v", err)
	}
	editor.Flush()

	older := clock.Now().Add(-30 * time.Minute)
	adapter.mu.Lock()
	adapter.ledger[sourdoughKey] = map[EditField]EditRecord{
		FieldName:     {Field: FieldName, EditedValue: "Sourdough (seeded)", Author: "ben", Timestamp: older},
		FieldQuantity: {Field: FieldQuantity, EditedValue: "14 kg", Author: "ben", Timestamp: older},
		FieldContent:  {Field: FieldContent, EditedValue: "extra salt", Author: "ben", Timestamp: older},
	}
	adapter.mu.Unlock()

	if err := editor.HandleRemoteUpdate(ctx, messages.Update{Type: messages.MsgEditRecorded, Author: "ben"}); err != nil {
		t.Fatalf("HandleRemoteUpdate failed: %v", err)
	}

	item := editor.Blocks()[0].Items[0]
	if item.RecipeName != "Sourdough (seeded)" || item.Quantity != 14 {
		t.Errorf("expected ben's edits on the layout, got %q %v", item.RecipeName, item.Quantity)
	}
	if item.Notes != "no salt" {
		t.Errorf("a newer local edit must win, got notes %q", item.Notes)
	}

	// Replaying the same update changes nothing.
	editor.Flush()
	pushes := adapter.pushCount()
	_ = editor.HandleRemoteUpdate(ctx, messages.Update{Type: messages.MsgEditRecorded, Author: "ben"})
	editor.Flush()
	if adapter.pushCount() != pushes {
		t.Errorf("an unchanged ledger must not push, got %d pushes after %d", adapter.pushCount(), pushes)
	}
}

func TestEditorRemoteEditsBeforeOpen(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.ledger[sourdoughKey] = map[EditField]EditRecord{
		FieldQuantity: {Field: FieldQuantity, EditedValue: "14 kg", Author: "ben", Timestamp: time.Now()},
	}
	editor, _ := newTestEditor(t, adapter, nil)

	if err := editor.HandleRemoteUpdate(context.Background(), messages.Update{Type: messages.MsgEditRecorded}); err != nil {
		t.Fatalf("HandleRemoteUpdate failed: %v", err)
	}
	editor.Flush()
	if adapter.pushCount() != 0 {
		t.Errorf("an editor that is not open must not push blocks, got %d", adapter.pushCount())
	}
}

func TestEditorUpstreamMovedNotification(t *testing.T) {
	editor, _ := newTestEditor(t, newFakeAdapter(), nil)
	ctx := context.Background()
	if err := editor.Open(ctx, ordersWith(10)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	moved := messages.Update{Type: messages.MsgUpstreamOrdersMoved, Author: "portal"}

	if err := editor.HandleRemoteUpdate(ctx, moved); err != nil {
		t.Fatalf("without a source the notification is ignored, got %v", err)
	}
	if editor.IsItemChanged(sourdoughKey) {
		t.Error("nothing can change without a source")
	}

	editor.SetUpstreamSource(func(context.Context) ([]Order, error) { return ordersWith(13), nil })
	if err := editor.HandleRemoteUpdate(ctx, moved); err != nil {
		t.Fatalf("HandleRemoteUpdate failed: %v", err)
	}
	if !editor.IsItemChanged(sourdoughKey) || editor.DisplayValue(sourdoughKey) != "13 kg" {
		t.Errorf("expected the reloaded orders, got %q", editor.DisplayValue(sourdoughKey))
	}

	editor.SetUpstreamSource(func(context.Context) ([]Order, error) { return nil, errUnavailable })
	if err := editor.HandleRemoteUpdate(ctx, moved); !errors.Is(err, errUnavailable) {
		t.Errorf("expected the source error, got %v", err)
	}
}
