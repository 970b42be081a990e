package sheet

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Order is one upstream customer order. Orders are read-only to the editor.
type Order struct {
	CustomerName string      `json:"customerName"`
	Title        string      `json:"title,omitempty"` // optional label that scopes the order's per-customer block
	Items        []OrderItem `json:"items"`
}

// OrderItem is a single line of an order.
type OrderItem struct {
	RecipeName string  `json:"recipeName"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	Notes      string  `json:"notes,omitempty"`
	Category   string  `json:"category,omitempty"`
	Packaging  string  `json:"packaging,omitempty"`
}

// LineKey returns the key used to correlate an order line across snapshots,
// edits and changes.
func (o Order) LineKey(item OrderItem) ItemKey {
	return MakeKey(item.RecipeName, o.CustomerName, o.BlockTitle())
}

// BlockTitle is the title of the order's per-customer block: the order's own
// title, else the customer name, else NoCustomer.
func (o Order) BlockTitle() string {
	if title := strings.TrimSpace(o.Title); title != "" {
		return title
	}
	if customer := strings.TrimSpace(o.CustomerName); customer != "" {
		return customer
	}
	return NoCustomer
}

// SessionID identifies one production sheet editing session.
type SessionID struct {
	Week int    `json:"week"`
	Year int    `json:"year"`
	Day  string `json:"day"`
}

func (s SessionID) String() string {
	return fmt.Sprintf("%d-W%02d-%s", s.Year, s.Week, strings.ToLower(s.Day))
}

// Validate checks the session has a usable week, year and day.
func (s SessionID) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Week, validation.Required, validation.Min(1), validation.Max(53)),
		validation.Field(&s.Year, validation.Required, validation.Min(2000)),
		validation.Field(&s.Day, validation.Required),
	)
}

// PortalValue is an upstream (portal) quantity with its unit.
type PortalValue struct {
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

func (v PortalValue) String() string {
	return FormatQuantity(v.Quantity, v.Unit)
}

// Equal compares quantities at two decimal places and units exactly.
func (v PortalValue) Equal(other PortalValue) bool {
	return roundQuantity(v.Quantity).Equal(roundQuantity(other.Quantity)) && v.Unit == other.Unit
}

// FormatQuantity renders a quantity the way it is displayed on a sheet, e.g. "12.5 kg".
func FormatQuantity(quantity float64, unit string) string {
	q := roundQuantity(quantity).String()
	if unit == "" {
		return q
	}
	return q + " " + unit
}

// ParseDisplayValue splits a displayed value such as "15 kg" into quantity and unit.
func ParseDisplayValue(display string) (float64, string, error) {
	fields := strings.Fields(display)
	if len(fields) == 0 {
		return 0, "", fmt.Errorf("empty quantity")
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(fields[0], ",", "."))
	if err != nil {
		return 0, "", fmt.Errorf("parse quantity %q: %w", fields[0], err)
	}
	return d.InexactFloat64(), strings.Join(fields[1:], " "), nil
}

func roundQuantity(q float64) decimal.Decimal {
	return decimal.NewFromFloat(q).Round(2)
}

// aggregateOrders folds every order line into one value per key. Repeated
// lines for the same key are summed when their units agree; otherwise the
// later line wins.
func aggregateOrders(orders []Order) map[ItemKey]PortalValue {
	values := make(map[ItemKey]PortalValue)
	for _, order := range orders {
		for _, item := range order.Items {
			key := order.LineKey(item)
			if existing, ok := values[key]; ok && existing.Unit == item.Unit {
				sum := roundQuantity(existing.Quantity).Add(roundQuantity(item.Quantity))
				values[key] = PortalValue{Quantity: sum.InexactFloat64(), Unit: item.Unit}
				continue
			}
			values[key] = PortalValue{Quantity: item.Quantity, Unit: item.Unit}
		}
	}
	return values
}
