package templates

// Block types understood by the generator.
const (
	TypePerCustomer       = "per-customer"
	TypeDetailedCategory  = "detailed-category"
	TypePackagingCategory = "packaging-category"
)

// Grouping modes for item-bearing blocks.
const (
	GroupNone       = ""         // flat item list
	GroupByRecipe   = "recipe"   // one group per recipe, one line per customer
	GroupByCustomer = "customer" // one group per customer, one line per recipe
)

// BlockTemplate describes how one kind of printable block is built from orders.
type BlockTemplate struct {
	Type            string `json:"type"`                      // one of the Type* constants
	Name            string `json:"name"`                      // human-readable template name
	SubtitleFormat  string `json:"subtitle_format,omitempty"` // fmt pattern, receives the block title
	GroupBy         string `json:"group_by,omitempty"`        // one of the Group* constants
	FallbackTitle   string `json:"fallback_title,omitempty"`  // title for lines missing the grouping attribute
	DefaultFontSize int    `json:"default_font_size"`
	Editable        bool   `json:"editable"`
}

// BlockGenerationResult reports the outcome of a generation run.
type BlockGenerationResult struct {
	Success       bool           `json:"success"`
	BlocksCreated []CreatedBlock `json:"blocks_created,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
}

// CreatedBlock summarizes one generated block.
type CreatedBlock struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	ItemCount int    `json:"item_count"`
}

// DefaultTemplates returns the three block kinds of a production sheet, in
// print order.
func DefaultTemplates() []BlockTemplate {
	return []BlockTemplate{
		{
			Type:            TypePerCustomer,
			Name:            "Customer order",
			DefaultFontSize: 16,
			Editable:        true,
		},
		{
			Type:            TypeDetailedCategory,
			Name:            "Kitchen category",
			SubtitleFormat:  "Production: %s",
			GroupBy:         GroupByRecipe,
			FallbackTitle:   "Uncategorized",
			DefaultFontSize: 16,
			Editable:        true,
		},
		{
			Type:            TypePackagingCategory,
			Name:            "Packaging",
			SubtitleFormat:  "Packing list: %s",
			GroupBy:         GroupByCustomer,
			DefaultFontSize: 14,
			Editable:        false,
		},
	}
}
