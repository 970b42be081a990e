package sheet

import (
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/hashstructure/v2"
)

// ContentField selects what EditContent changes.
type ContentField string

const (
	ContentTitle    ContentField = "title"
	ContentSubtitle ContentField = "subtitle"
	ContentItem     ContentField = "item"
)

// ItemPatch carries the item fields to overwrite; nil fields are kept.
type ItemPatch struct {
	RecipeName   *string
	CustomerName *string
	Quantity     *float64
	Unit         *string
	Notes        *string
}

// ContentEdit is one content change to a block. Title and subtitle edits use
// Value; item edits address an item by Group (-1 for the flat item list) and
// Index and apply Patch.
type ContentEdit struct {
	Field ContentField
	Value string
	Group int
	Index int
	Patch ItemPatch
}

// Validate checks the edit is well formed.
func (e ContentEdit) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Field, validation.Required, validation.In(ContentTitle, ContentSubtitle, ContentItem)),
		validation.Field(&e.Group, validation.Min(-1)),
		validation.Field(&e.Index, validation.Min(0)),
	)
}

// BlockSink receives the block collection whenever its content changed since
// the last push.
type BlockSink func(blocks []Block)

// BlockLayout owns the ordered block collection. Every operation replaces
// the collection with a new one; slices handed out earlier stay unchanged.
type BlockLayout struct {
	blocks     []Block
	sink       BlockSink
	lastPushed uint64
	pushed     bool
	dirty      atomic.Bool
}

// NewBlockLayout creates an empty layout that reports changes to sink.
func NewBlockLayout(sink BlockSink) *BlockLayout {
	return &BlockLayout{sink: sink}
}

// Blocks returns the current collection. Callers must not modify it.
func (l *BlockLayout) Blocks() []Block {
	return l.blocks
}

// Block returns a copy of the block with the given ID.
func (l *BlockLayout) Block(blockID string) (Block, bool) {
	if i := l.indexOf(blockID); i >= 0 {
		return l.blocks[i].Clone(), true
	}
	return Block{}, false
}

// Load replaces the collection without pushing. When alreadyPushed is set
// the collection counts as the last pushed state.
func (l *BlockLayout) Load(blocks []Block, alreadyPushed bool) {
	l.blocks = renumber(cloneBlocks(blocks))
	l.pushed = false
	if alreadyPushed {
		if hash, err := hashBlocks(l.blocks); err == nil {
			l.lastPushed = hash
			l.pushed = true
		}
	}
}

// Replace installs blocks as the new collection, pushing if they differ
// from the last push.
func (l *BlockLayout) Replace(blocks []Block) {
	l.commit(renumber(cloneBlocks(blocks)))
}

// SetFontSize changes a block's font size by delta, clamped to
// [MinFontSize, MaxFontSize].
func (l *BlockLayout) SetFontSize(blockID string, delta int) error {
	i := l.indexOf(blockID)
	if i < 0 {
		return fmt.Errorf("set font size of %s: %w", blockID, ErrBlockNotFound)
	}
	next := cloneBlocks(l.blocks)
	next[i].FontSize = clampFontSize(next[i].FontSize + delta)
	l.commit(next)
	return nil
}

// Reorder moves the block at from to position to. Equal or out-of-range
// indices leave the collection untouched.
func (l *BlockLayout) Reorder(from, to int) {
	if from == to || from < 0 || to < 0 || from >= len(l.blocks) || to >= len(l.blocks) {
		return
	}
	next := cloneBlocks(l.blocks)
	moved := next[from]
	next = append(next[:from], next[from+1:]...)
	next = append(next[:to], append([]Block{moved}, next[to:]...)...)
	l.commit(renumber(next))
}

// EditContent applies a title, subtitle or item edit to a block. Item edits
// recompute the totals of the block's groups.
func (l *BlockLayout) EditContent(blockID string, edit ContentEdit) error {
	if err := edit.Validate(); err != nil {
		return fmt.Errorf("edit content of %s: %w", blockID, err)
	}
	i := l.indexOf(blockID)
	if i < 0 {
		return fmt.Errorf("edit content of %s: %w", blockID, ErrBlockNotFound)
	}
	next := cloneBlocks(l.blocks)
	block := &next[i]

	switch edit.Field {
	case ContentTitle:
		block.Title = edit.Value
	case ContentSubtitle:
		block.Subtitle = edit.Value
	case ContentItem:
		item, err := block.itemAt(edit.Group, edit.Index)
		if err != nil {
			return fmt.Errorf("edit content of %s: %w", blockID, err)
		}
		edit.Patch.apply(item)
		block.recomputeTotals()
	}

	l.commit(next)
	return nil
}

// UpdateItems patches every item carrying key, across all blocks.
func (l *BlockLayout) UpdateItems(key ItemKey, patch ItemPatch) int {
	next := cloneBlocks(l.blocks)
	updated := 0
	for b := range next {
		touched := false
		next[b].forEachItem(func(item *Item) {
			if item.Key == key {
				patch.apply(item)
				touched = true
				updated++
			}
		})
		if touched {
			next[b].recomputeTotals()
		}
	}
	if updated > 0 {
		l.commit(next)
	}
	return updated
}

// FindItem returns the first item carrying key.
func (l *BlockLayout) FindItem(key ItemKey) (Item, bool) {
	for b := range l.blocks {
		var found *Item
		l.blocks[b].forEachItem(func(item *Item) {
			if found == nil && item.Key == key {
				found = item
			}
		})
		if found != nil {
			return *found, true
		}
	}
	return Item{}, false
}

// SetAutoFitting flags a block while an auto-fit is in flight. The flag is
// local state and never triggers a push.
func (l *BlockLayout) SetAutoFitting(blockID string, fitting bool) {
	if i := l.indexOf(blockID); i >= 0 {
		next := cloneBlocks(l.blocks)
		next[i].AutoFitting = fitting
		l.blocks = next
	}
}

// ApplyPreferences restores locally saved font sizes and block order.
// Blocks unknown to prefs keep their relative order after the known ones.
func (l *BlockLayout) ApplyPreferences(prefs *Preferences) {
	if prefs == nil {
		return
	}
	next := cloneBlocks(l.blocks)
	for i := range next {
		if size, ok := prefs.FontSizes[next[i].ID]; ok {
			next[i].FontSize = clampFontSize(size)
		}
	}
	if len(prefs.BlockOrder) > 0 {
		rank := make(map[string]int, len(prefs.BlockOrder))
		for i, id := range prefs.BlockOrder {
			rank[id] = i
		}
		ordered := make([]Block, 0, len(next))
		var rest []Block
		placed := make([]*Block, len(prefs.BlockOrder))
		for i := range next {
			if r, ok := rank[next[i].ID]; ok {
				placed[r] = &next[i]
			} else {
				rest = append(rest, next[i])
			}
		}
		for _, block := range placed {
			if block != nil {
				ordered = append(ordered, *block)
			}
		}
		next = append(ordered, rest...)
	}
	l.commit(renumber(next))
}

// Preferences extracts the font sizes and order worth keeping locally.
func (l *BlockLayout) Preferences() *Preferences {
	return preferencesOf(l.blocks)
}

func preferencesOf(blocks []Block) *Preferences {
	prefs := &Preferences{FontSizes: make(map[string]int, len(blocks))}
	for _, block := range blocks {
		prefs.FontSizes[block.ID] = block.FontSize
		prefs.BlockOrder = append(prefs.BlockOrder, block.ID)
	}
	return prefs
}

// MarkDirty forces the next operation to push even if the content hash
// matches the last push, e.g. after that push failed.
func (l *BlockLayout) MarkDirty() {
	l.dirty.Store(true)
}

// Flush pushes the current collection if it changed since the last push.
func (l *BlockLayout) Flush() {
	l.commit(l.blocks)
}

// commit installs next and forwards it to the sink only when its content
// differs from what was last pushed. Re-deriving an identical collection
// must not push, or the sync store would echo it back indefinitely.
func (l *BlockLayout) commit(next []Block) {
	l.blocks = next
	hash, err := hashBlocks(next)
	if err != nil {
		log.Warnf("Failed to hash blocks, pushing unconditionally: %v", err)
	} else if l.pushed && hash == l.lastPushed && !l.dirty.Load() {
		log.Debug("Blocks unchanged since last push")
		return
	}
	l.lastPushed = hash
	l.pushed = err == nil
	l.dirty.Store(false)
	if l.sink != nil {
		l.sink(cloneBlocks(next))
	}
}

func (l *BlockLayout) indexOf(blockID string) int {
	for i := range l.blocks {
		if l.blocks[i].ID == blockID {
			return i
		}
	}
	return -1
}

func (b *Block) itemAt(group, index int) (*Item, error) {
	items := b.Items
	if group >= 0 {
		if group >= len(b.Groups) {
			return nil, fmt.Errorf("group %d out of range", group)
		}
		items = b.Groups[group].Items
	}
	if index >= len(items) {
		return nil, fmt.Errorf("item %d out of range", index)
	}
	return &items[index], nil
}

func (p ItemPatch) apply(item *Item) {
	if p.RecipeName != nil {
		item.RecipeName = *p.RecipeName
	}
	if p.CustomerName != nil {
		item.CustomerName = *p.CustomerName
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.Notes != nil {
		item.Notes = *p.Notes
	}
}

func renumber(blocks []Block) []Block {
	for i := range blocks {
		blocks[i].PositionIndex = i
	}
	return blocks
}

func hashBlocks(blocks []Block) (uint64, error) {
	return hashstructure.Hash(blocks, hashstructure.FormatV2, nil)
}

// ApplyEdits overlays recorded edits onto freshly loaded blocks and returns
// a new collection. Edits assign values rather than adjust them, so applying
// the same ledger twice yields the same blocks.
func ApplyEdits(blocks []Block, edits LedgerSnapshot) []Block {
	out := cloneBlocks(blocks)
	for b := range out {
		touched := false
		out[b].forEachItem(func(item *Item) {
			fields, ok := edits[item.Key]
			if !ok {
				return
			}
			for field, record := range fields {
				switch field {
				case FieldQuantity:
					quantity, unit, err := ParseDisplayValue(record.EditedValue)
					if err != nil {
						log.Warn("Skipping unparsable quantity edit", "key", item.Key, "value", record.EditedValue)
						continue
					}
					item.Quantity = quantity
					if unit != "" {
						item.Unit = unit
					}
				case FieldName:
					item.RecipeName = record.EditedValue
				case FieldCustomer:
					item.CustomerName = record.EditedValue
				case FieldContent:
					item.Notes = record.EditedValue
				}
				touched = true
			}
		})
		if touched {
			out[b].recomputeTotals()
		}
	}
	return out
}
