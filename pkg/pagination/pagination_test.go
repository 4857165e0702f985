package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 5, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(cursor))
	require.NoError(t, err)
	require.True(t, cursor.CreatedAt.Equal(parsed.CreatedAt))
	require.Equal(t, cursor.ID, parsed.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseCursor("!!!")
	require.Error(t, err)
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(1000))
	require.Equal(t, 8, LimitWithBuffer(7))
}

func TestPage(t *testing.T) {
	p := Page{}.Normalize()
	require.Equal(t, 1, p.Page)
	require.Equal(t, DefaultPageSize, p.Limit)

	require.Equal(t, 20, Page{Page: 3, Limit: 10}.Offset())
	require.True(t, Page{Page: 1, Limit: 10}.HasMore(11))
	require.False(t, Page{Page: 2, Limit: 10}.HasMore(20))
}
