package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/payloads"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventEmailRequested, 1, func(payload json.RawMessage) (interface{}, error) {
		var decoded payloads.EmailRequestedEvent
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	output, err := reg.Decode(enums.EventEmailRequested, 1, json.RawMessage(`{"to":"a@x.com","template":"welcome"}`))
	require.NoError(t, err)
	email, ok := output.(payloads.EmailRequestedEvent)
	require.True(t, ok)
	require.Equal(t, "a@x.com", email.To)
	require.Equal(t, payloads.EmailWelcome, email.Template)

	_, err = reg.Decode(enums.EventEmailRequested, 2, nil)
	require.Error(t, err)
}
