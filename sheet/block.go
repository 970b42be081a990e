package sheet

import (
	"github.com/shopspring/decimal"
)

// BlockType is the kind of printable block.
type BlockType string

const (
	BlockPerCustomer       BlockType = "per-customer"
	BlockDetailedCategory  BlockType = "detailed-category"
	BlockPackagingCategory BlockType = "packaging-category"
)

// Font size bounds shared by manual changes and auto-fit.
const (
	MinFontSize     = 8
	MaxFontSize     = 30
	DefaultFontSize = 16
)

// Block is one printable page of the production sheet.
type Block struct {
	ID            string      `json:"id"`
	Type          BlockType   `json:"type"`
	Title         string      `json:"title"`
	Subtitle      string      `json:"subtitle,omitempty"`
	Items         []Item      `json:"items,omitempty"`  // per-customer blocks
	Groups        []ItemGroup `json:"groups,omitempty"` // category blocks
	FontSize      int         `json:"fontSize"`
	PositionIndex int         `json:"positionIndex"`
	Editable      bool        `json:"editable"`

	// AutoFitting is local UI state; it is neither pushed nor hashed.
	AutoFitting bool `json:"-" hash:"ignore"`
}

// Item is one line inside a block. Items are owned by their block.
type Item struct {
	Key           ItemKey  `json:"key"`
	RecipeName    string   `json:"recipeName"`
	CustomerName  string   `json:"customerName"`
	Quantity      float64  `json:"quantity"`
	Unit          string   `json:"unit"`
	Notes         string   `json:"notes,omitempty"`
	ComputedTotal *float64 `json:"computedTotal,omitempty"`

	// LineKey is the order line a category item was generated from; empty
	// when Key already is the line key.
	LineKey ItemKey `json:"lineKey,omitempty"`
	// Display is the resolved quantity text set for printing; never stored.
	Display string `json:"-" hash:"ignore"`
}

// ItemGroup is a titled run of items with a displayed total.
type ItemGroup struct {
	Name  string  `json:"name"`
	Items []Item  `json:"items"`
	Total float64 `json:"total"`
	Unit  string  `json:"unit,omitempty"` // empty when the items mix units
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	out := b
	out.Items = cloneItems(b.Items)
	if b.Groups != nil {
		out.Groups = make([]ItemGroup, len(b.Groups))
		for i, group := range b.Groups {
			out.Groups[i] = group
			out.Groups[i].Items = cloneItems(group.Items)
		}
	}
	return out
}

// ItemCount counts every item in the block, grouped or not.
func (b Block) ItemCount() int {
	n := len(b.Items)
	for _, group := range b.Groups {
		n += len(group.Items)
	}
	return n
}

// HasItems reports whether the block carries item content.
func (b Block) HasItems() bool {
	return len(b.Items) > 0 || len(b.Groups) > 0
}

// forEachItem calls fn with a pointer to every item of b.
func (b *Block) forEachItem(fn func(item *Item)) {
	for i := range b.Items {
		fn(&b.Items[i])
	}
	for g := range b.Groups {
		for i := range b.Groups[g].Items {
			fn(&b.Groups[g].Items[i])
		}
	}
}

// recomputeTotals refreshes every group total: the sum of the group's
// quantities rounded to two decimals.
func (b *Block) recomputeTotals() {
	for g := range b.Groups {
		group := &b.Groups[g]
		sum := decimal.Zero
		unit := ""
		mixed := false
		for i, item := range group.Items {
			sum = sum.Add(decimal.NewFromFloat(item.Quantity))
			if i == 0 {
				unit = item.Unit
			} else if item.Unit != unit {
				mixed = true
			}
		}
		group.Total = sum.Round(2).InexactFloat64()
		if mixed {
			unit = ""
		}
		group.Unit = unit
		total := group.Total
		for i := range group.Items {
			group.Items[i].ComputedTotal = &total
		}
	}
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = item
		if item.ComputedTotal != nil {
			total := *item.ComputedTotal
			out[i].ComputedTotal = &total
		}
	}
	return out
}

func cloneBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, block := range blocks {
		out[i] = block.Clone()
	}
	return out
}

func clampFontSize(size int) int {
	if size < MinFontSize {
		return MinFontSize
	}
	if size > MaxFontSize {
		return MaxFontSize
	}
	return size
}
