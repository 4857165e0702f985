package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

// Checkout session metadata carries everything needed to rebuild the order
// when the payment webhook arrives. Stripe caps each value at 500 characters,
// so the item list is split across cartItems, cartItems_1, cartItems_2...
const (
	metaUserID   = "userId"
	metaShipping = "shippingInfo"
	metaItems    = "cartItems"

	metadataValueLimit = 500
	maxItemChunks      = 40
)

var errMetadataTooLarge = errors.New("checkout metadata exceeds stripe limits")

// sessionLine is one paid line: product, quantity and the unit price charged.
type sessionLine struct {
	ProductID uuid.UUID
	Quantity  int
	UnitCents int64
}

func (l sessionLine) encode() string {
	return fmt.Sprintf("%s:%d:%d", l.ProductID, l.Quantity, l.UnitCents)
}

func encodeMetadata(userID uuid.UUID, address types.ShippingAddress, lines []sessionLine) (map[string]string, error) {
	shipping, err := json.Marshal(address)
	if err != nil {
		return nil, err
	}
	if len(shipping) > metadataValueLimit {
		return nil, fmt.Errorf("%w: shipping address", errMetadataTooLarge)
	}

	meta := map[string]string{
		metaUserID:   userID.String(),
		metaShipping: string(shipping),
	}

	var chunks []string
	current := ""
	for _, line := range lines {
		encoded := line.encode()
		switch {
		case current == "":
			current = encoded
		case len(current)+1+len(encoded) <= metadataValueLimit:
			current += "," + encoded
		default:
			chunks = append(chunks, current)
			current = encoded
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	if len(chunks) > maxItemChunks {
		return nil, fmt.Errorf("%w: %d items", errMetadataTooLarge, len(lines))
	}
	for i, chunk := range chunks {
		meta[itemsKey(i)] = chunk
	}
	return meta, nil
}

func decodeMetadata(meta map[string]string) (uuid.UUID, types.ShippingAddress, []sessionLine, error) {
	var address types.ShippingAddress

	userID, err := uuid.Parse(strings.TrimSpace(meta[metaUserID]))
	if err != nil {
		return uuid.Nil, address, nil, fmt.Errorf("metadata %s: %w", metaUserID, err)
	}
	if err := json.Unmarshal([]byte(meta[metaShipping]), &address); err != nil {
		return uuid.Nil, address, nil, fmt.Errorf("metadata %s: %w", metaShipping, err)
	}

	var lines []sessionLine
	for i := 0; i < maxItemChunks; i++ {
		chunk, ok := meta[itemsKey(i)]
		if !ok {
			break
		}
		for _, raw := range strings.Split(chunk, ",") {
			line, err := parseSessionLine(raw)
			if err != nil {
				return uuid.Nil, address, nil, fmt.Errorf("metadata %s: %w", itemsKey(i), err)
			}
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return uuid.Nil, address, nil, fmt.Errorf("metadata %s missing", metaItems)
	}
	return userID, address, lines, nil
}

func parseSessionLine(raw string) (sessionLine, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return sessionLine{}, fmt.Errorf("malformed line %q", raw)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return sessionLine{}, err
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil || qty <= 0 {
		return sessionLine{}, fmt.Errorf("invalid quantity in %q", raw)
	}
	cents, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || cents < 0 {
		return sessionLine{}, fmt.Errorf("invalid price in %q", raw)
	}
	return sessionLine{ProductID: id, Quantity: qty, UnitCents: cents}, nil
}

func itemsKey(i int) string {
	if i == 0 {
		return metaItems
	}
	return fmt.Sprintf("%s_%d", metaItems, i)
}
