package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// CartKind tags which representation a CartDocument was decoded from.
type CartKind string

const (
	CartKindItems  CartKind = "items"
	CartKindLegacy CartKind = "legacy"
)

// CartItem is one line of a user's server-side cart.
type CartItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// CartDocument is the cart column on users. Older rows store a
// {productId: quantity} object; those decode as CartKindLegacy and must be
// converted with MigrateLegacy before mutation. Writes always use the items form.
type CartDocument struct {
	Kind   CartKind
	Items  []CartItem
	Legacy map[string]int
}

// NewCart builds an items-form cart.
func NewCart(items ...CartItem) CartDocument {
	out := make([]CartItem, 0, len(items))
	out = append(out, items...)
	return CartDocument{Kind: CartKindItems, Items: out}
}

func (c CartDocument) IsLegacy() bool {
	return c.Kind == CartKindLegacy
}

// MigrateLegacy converts a legacy map cart into the items form. Keys that are
// not valid product ids are dropped; a zero quantity becomes 1. Items-form
// carts are returned unchanged.
func (c CartDocument) MigrateLegacy() CartDocument {
	if !c.IsLegacy() {
		if c.Kind == "" {
			c.Kind = CartKindItems
		}
		return c
	}

	keys := make([]string, 0, len(c.Legacy))
	for key := range c.Legacy {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	items := make([]CartItem, 0, len(keys))
	for _, key := range keys {
		id, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		qty := c.Legacy[key]
		if qty == 0 {
			qty = 1
		}
		items = append(items, CartItem{ProductID: id, Quantity: qty})
	}
	return CartDocument{Kind: CartKindItems, Items: items}
}

// Find returns the index of productID or -1.
func (c *CartDocument) Find(productID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add increments the quantity for productID, appending the line when absent.
func (c *CartDocument) Add(productID uuid.UUID, quantity int) {
	if idx := c.Find(productID); idx >= 0 {
		c.Items[idx].Quantity += quantity
		return
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity})
}

// Set overwrites the quantity for an existing line; quantity <= 0 removes it.
// It reports false when the product is not in the cart.
func (c *CartDocument) Set(productID uuid.UUID, quantity int) bool {
	idx := c.Find(productID)
	if idx < 0 {
		return false
	}
	if quantity <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return true
	}
	c.Items[idx].Quantity = quantity
	return true
}

// Remove drops productID if present.
func (c *CartDocument) Remove(productID uuid.UUID) {
	kept := c.Items[:0]
	for _, item := range c.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	c.Items = kept
}

// Clean drops lines with a nil product id, a non-positive quantity, or a
// product that known rejects. A nil known keeps every well-formed line.
func (c *CartDocument) Clean(known func(uuid.UUID) bool) {
	kept := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.ProductID == uuid.Nil || item.Quantity <= 0 {
			continue
		}
		if known != nil && !known(item.ProductID) {
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept
}

// ProductIDs lists the product ids referenced by the cart.
func (c CartDocument) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Count sums the quantities of every line.
func (c CartDocument) Count() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c CartDocument) MarshalJSON() ([]byte, error) {
	migrated := c.MigrateLegacy()
	if migrated.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(migrated.Items)
}

func (c *CartDocument) UnmarshalJSON(raw []byte) error {
	decoded, err := decodeCart(raw)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

func (c CartDocument) Value() (driver.Value, error) {
	buf, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func (c *CartDocument) Scan(value any) error {
	if value == nil {
		*c = NewCart()
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cart: unsupported scan type %T", value)
	}
	return c.UnmarshalJSON(raw)
}

func decodeCart(raw []byte) (CartDocument, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewCart(), nil
	}

	switch trimmed[0] {
	case '[':
		items := []CartItem{}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return CartDocument{}, fmt.Errorf("cart: %w", err)
		}
		return CartDocument{Kind: CartKindItems, Items: items}, nil
	case '{':
		entries := map[string]json.RawMessage{}
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return CartDocument{}, fmt.Errorf("cart: %w", err)
		}
		legacy := make(map[string]int, len(entries))
		for key, value := range entries {
			legacy[key] = legacyQuantity(value)
		}
		return CartDocument{Kind: CartKindLegacy, Legacy: legacy}, nil
	default:
		return CartDocument{}, fmt.Errorf("cart: unexpected json %q", string(trimmed[:1]))
	}
}

func legacyQuantity(raw json.RawMessage) int {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return int(number)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.Atoi(text); err == nil {
			return parsed
		}
	}
	return 1
}
