package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC), ID: uuid.New()}
	token := EncodeCursor(in)
	assert.NotContains(t, token, "=")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	cur, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, cur)

	for _, raw := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString())),
		base64.RawURLEncoding.EncodeToString([]byte(time.Now().UTC().Format(time.RFC3339Nano) + "|not-a-uuid")),
	} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}

func TestPage(t *testing.T) {
	rows := []int{1, 2, 3}
	cursorOf := func(v int) Cursor { return Cursor{CreatedAt: time.Unix(int64(v), 0)} }

	page, next := Page(rows, 2, cursorOf)
	assert.Equal(t, []int{1, 2}, page)
	require.NotNil(t, next)
	assert.Equal(t, int64(2), next.CreatedAt.Unix())

	page, next = Page(rows, 3, cursorOf)
	assert.Equal(t, rows, page)
	assert.Nil(t, next)
}
