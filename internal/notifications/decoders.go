package notifications

import (
	"encoding/json"

	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/registry"
)

// NewDecoders registers the payload decoders the worker consumes.
func NewDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventOrderPlaced, outbox.CurrentVersion, func(raw json.RawMessage) (interface{}, error) {
		var payload payloads.OrderPlacedEvent
		err := json.Unmarshal(raw, &payload)
		return payload, err
	})
	decoders.Register(enums.EventOrderStatusChanged, outbox.CurrentVersion, func(raw json.RawMessage) (interface{}, error) {
		var payload payloads.OrderStatusChangedEvent
		err := json.Unmarshal(raw, &payload)
		return payload, err
	})
	decoders.Register(enums.EventEmailRequested, outbox.CurrentVersion, func(raw json.RawMessage) (interface{}, error) {
		var payload payloads.EmailRequestedEvent
		err := json.Unmarshal(raw, &payload)
		return payload, err
	})
	return decoders
}
