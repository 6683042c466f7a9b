package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/cccs/clue-client/internal/encryption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEncrypted(t *testing.T) (*Encrypted, *Session) {
	t.Helper()

	aead, err := encryption.NewTestAEAD()
	require.NoError(t, err)

	session, err := NewSession()
	require.NoError(t, err)

	return NewEncrypted(session, aead), session
}

func TestEncrypted_RoundTrip(t *testing.T) {
	ctx := context.Background()
	enc, inner := newEncrypted(t)

	require.NoError(t, enc.Set(ctx, "clue.ui.app_token", `"secret-token"`))

	raw, found, err := inner.Get(ctx, "clue.ui.app_token")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, strings.HasPrefix(raw, valuePrefix))
	assert.NotContains(t, raw, "secret-token")

	value, found, err := enc.Get(ctx, "clue.ui.app_token")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `"secret-token"`, value)
}

func TestEncrypted_PlaintextPassesThrough(t *testing.T) {
	ctx := context.Background()
	enc, inner := newEncrypted(t)

	require.NoError(t, inner.Set(ctx, "clue.ui.page_count", "25"))

	value, found, err := enc.Get(ctx, "clue.ui.page_count")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "25", value)
}

func TestEncrypted_SwappedCiphertextFails(t *testing.T) {
	ctx := context.Background()
	enc, inner := newEncrypted(t)

	require.NoError(t, enc.Set(ctx, "clue.ui.a", `"a"`))
	sealed, _, err := inner.Get(ctx, "clue.ui.a")
	require.NoError(t, err)

	// the key is bound as associated data
	require.NoError(t, inner.Set(ctx, "clue.ui.b", sealed))

	_, _, err = enc.Get(ctx, "clue.ui.b")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncrypted_CorruptEncoding(t *testing.T) {
	ctx := context.Background()
	enc, inner := newEncrypted(t)

	require.NoError(t, inner.Set(ctx, "clue.ui.a", valuePrefix+"!!not-base64!!"))

	_, _, err := enc.Get(ctx, "clue.ui.a")
	assert.ErrorContains(t, err, "base64 decode failed")
}

func TestEncrypted_KeysAndDelete(t *testing.T) {
	ctx := context.Background()
	enc, _ := newEncrypted(t)

	require.NoError(t, enc.Set(ctx, "clue.ui.a", "1"))
	require.NoError(t, enc.Set(ctx, "clue.ui.b", "2"))

	keys, err := enc.Keys(ctx, "clue.ui.")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"clue.ui.a", "clue.ui.b"}, keys)

	require.NoError(t, enc.Delete(ctx, "clue.ui.a"))
	_, found, err := enc.Get(ctx, "clue.ui.a")
	require.NoError(t, err)
	assert.False(t, found)
}
