package sheet

import (
	"fmt"
	"strings"
)

// NoCustomer is the customer segment used for order lines without a customer.
const NoCustomer = "no customer"

const (
	keySeparator = '|'
	keyEscape    = '\\'
)

// ItemKey identifies an order line across snapshots, edits and changes.
type ItemKey string

// KeyParts is the decoded form of an ItemKey.
type KeyParts struct {
	BlockTitle   string // empty when the key is not scoped to a block
	ItemName     string
	CustomerName string
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// MakeKey builds the key for an item. A missing customer is normalized to
// NoCustomer; a non-empty blockTitle becomes the leading segment so identical
// recipe names in different per-customer blocks never collide.
func MakeKey(itemName, customerName, blockTitle string) ItemKey {
	customer := NormalizeCustomer(customerName)
	var b strings.Builder
	b.WriteString(keyEscaper.Replace(strings.TrimSpace(blockTitle)))
	b.WriteByte(keySeparator)
	b.WriteString(keyEscaper.Replace(strings.TrimSpace(itemName)))
	b.WriteByte(keySeparator)
	b.WriteString(keyEscaper.Replace(customer))
	return ItemKey(b.String())
}

// NormalizeCustomer maps a missing customer to NoCustomer.
func NormalizeCustomer(customerName string) string {
	customer := strings.TrimSpace(customerName)
	if customer == "" {
		return NoCustomer
	}
	return customer
}

// ParseKey is the exact inverse of MakeKey.
func ParseKey(key ItemKey) (KeyParts, error) {
	segments := splitEscaped(string(key))
	if len(segments) != 3 {
		return KeyParts{}, fmt.Errorf("%w: %q has %d segments", ErrInvalidKey, key, len(segments))
	}
	return KeyParts{
		BlockTitle:   segments[0],
		ItemName:     segments[1],
		CustomerName: segments[2],
	}, nil
}

// ParseLegacyKey decodes the older underscore-joined keys still found in
// snapshots written by previous versions. Two segments are (item, customer);
// three or more are read as (block, item..., customer), preferring the newer
// block-scoped format. Item names containing underscores in a two-segment
// legacy key are therefore misattributed; such keys cannot be told apart.
func ParseLegacyKey(key string) (KeyParts, error) {
	segments := strings.Split(key, "_")
	switch {
	case len(segments) < 2:
		return KeyParts{}, fmt.Errorf("%w: legacy key %q", ErrInvalidKey, key)
	case len(segments) == 2:
		return KeyParts{ItemName: segments[0], CustomerName: segments[1]}, nil
	default:
		return KeyParts{
			BlockTitle:   segments[0],
			ItemName:     strings.Join(segments[1:len(segments)-1], "_"),
			CustomerName: segments[len(segments)-1],
		}, nil
	}
}

// Key re-encodes the parts with MakeKey.
func (p KeyParts) Key() ItemKey {
	return MakeKey(p.ItemName, p.CustomerName, p.BlockTitle)
}

func splitEscaped(s string) []string {
	var segments []string
	var current strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == keyEscape:
			escaped = true
		case r == keySeparator:
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(segments, current.String())
}
