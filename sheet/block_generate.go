package sheet

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/zenibako/prodsheet-golang/templates"
)

// blockNamespace seeds the deterministic block IDs so the same block gets
// the same ID every time a session is generated.
var blockNamespace = uuid.MustParse("6f1c2a4e-9b7d-4c1a-8e52-3d0b7a9f1e64")

// BlockID returns the stable ID of the block of the given type and title.
func BlockID(blockType BlockType, title string) string {
	return uuid.NewSHA1(blockNamespace, []byte(string(blockType)+"/"+title)).String()
}

// BlockGenerator builds the initial block collection from upstream orders.
type BlockGenerator struct {
	templates []templates.BlockTemplate
}

// NewBlockGenerator creates a generator. No templates means the defaults.
func NewBlockGenerator(blockTemplates ...templates.BlockTemplate) *BlockGenerator {
	if len(blockTemplates) == 0 {
		blockTemplates = templates.DefaultTemplates()
	}
	return &BlockGenerator{templates: blockTemplates}
}

// GenerateBlocks builds one set of blocks per template, in template order.
func (g *BlockGenerator) GenerateBlocks(orders []Order) ([]Block, templates.BlockGenerationResult) {
	result := templates.BlockGenerationResult{
		Success:       true,
		BlocksCreated: []templates.CreatedBlock{},
		Errors:        []string{},
	}

	var blocks []Block
	for _, template := range g.templates {
		generated, err := g.generateFromTemplate(template, orders)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		blocks = append(blocks, generated...)
	}

	for i := range blocks {
		blocks[i].PositionIndex = i
		result.BlocksCreated = append(result.BlocksCreated, templates.CreatedBlock{
			ID:        blocks[i].ID,
			Type:      string(blocks[i].Type),
			Title:     blocks[i].Title,
			ItemCount: blocks[i].ItemCount(),
		})
	}

	log.Info("Generated blocks", "count", len(blocks), "orders", len(orders))
	return blocks, result
}

func (g *BlockGenerator) generateFromTemplate(template templates.BlockTemplate, orders []Order) ([]Block, error) {
	switch template.Type {
	case templates.TypePerCustomer:
		return perCustomerBlocks(template, orders), nil
	case templates.TypeDetailedCategory:
		return groupedBlocks(template, BlockDetailedCategory, orders, func(item OrderItem) string { return item.Category }), nil
	case templates.TypePackagingCategory:
		return groupedBlocks(template, BlockPackagingCategory, orders, func(item OrderItem) string { return item.Packaging }), nil
	default:
		return nil, fmt.Errorf("unknown block template type %q", template.Type)
	}
}

func perCustomerBlocks(template templates.BlockTemplate, orders []Order) []Block {
	blocks := make([]Block, 0, len(orders))
	for _, order := range orders {
		title := order.BlockTitle()
		subtitle := ""
		if strings.TrimSpace(order.Title) != "" {
			subtitle = order.CustomerName
		}
		block := Block{
			ID:       BlockID(BlockPerCustomer, title),
			Type:     BlockPerCustomer,
			Title:    title,
			Subtitle: subtitle,
			FontSize: defaultFont(template),
			Editable: template.Editable,
		}
		for _, line := range order.Items {
			block.Items = append(block.Items, Item{
				Key:          order.LineKey(line),
				RecipeName:   line.RecipeName,
				CustomerName: order.CustomerName,
				Quantity:     line.Quantity,
				Unit:         line.Unit,
				Notes:        line.Notes,
			})
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// groupedBlocks builds one block per distinct attribute value. Lines whose
// attribute is empty go to the template's fallback block, or are left out
// when the template has none.
func groupedBlocks(template templates.BlockTemplate, blockType BlockType, orders []Order, attribute func(OrderItem) string) []Block {
	var titles []string
	byTitle := make(map[string]*Block)

	for _, order := range orders {
		for _, line := range order.Items {
			title := strings.TrimSpace(attribute(line))
			if title == "" {
				title = template.FallbackTitle
			}
			if title == "" {
				continue
			}
			block, ok := byTitle[title]
			if !ok {
				block = &Block{
					ID:       BlockID(blockType, title),
					Type:     blockType,
					Title:    title,
					FontSize: defaultFont(template),
					Editable: template.Editable,
				}
				if template.SubtitleFormat != "" {
					block.Subtitle = fmt.Sprintf(template.SubtitleFormat, title)
				}
				byTitle[title] = block
				titles = append(titles, title)
			}
			groupName := line.RecipeName
			if template.GroupBy == templates.GroupByCustomer {
				groupName = NormalizeCustomer(order.CustomerName)
			}
			addToGroup(block, groupName, Item{
				// Category blocks own their items; keys are scoped to the block.
				Key:          MakeKey(line.RecipeName, order.CustomerName, title),
				LineKey:      order.LineKey(line),
				RecipeName:   line.RecipeName,
				CustomerName: order.CustomerName,
				Quantity:     line.Quantity,
				Unit:         line.Unit,
				Notes:        line.Notes,
			})
		}
	}

	blocks := make([]Block, 0, len(titles))
	for _, title := range titles {
		block := byTitle[title]
		block.recomputeTotals()
		blocks = append(blocks, *block)
	}
	return blocks
}

func addToGroup(block *Block, name string, item Item) {
	for i := range block.Groups {
		if block.Groups[i].Name == name {
			block.Groups[i].Items = append(block.Groups[i].Items, item)
			return
		}
	}
	block.Groups = append(block.Groups, ItemGroup{Name: name, Items: []Item{item}})
}

func defaultFont(template templates.BlockTemplate) int {
	if template.DefaultFontSize == 0 {
		return DefaultFontSize
	}
	return clampFontSize(template.DefaultFontSize)
}
