package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "clarity_user__auth0_7c123", CollectionName("auth0|123", ""))
	assert.Equal(t, "clarity_user__a_40b.c__nb1", CollectionName("a@b.c", "nb1"))

	assert.True(t, IsUserCollection("clarity_user__auth0_7c123__nb1", "auth0|123"))
	assert.True(t, IsUserCollection("clarity_user__auth0_7c123", "auth0|123"))
	assert.False(t, IsUserCollection("clarity_user__auth0_7c1234__nb1", "auth0|123"))

	t.Run("Ids never collide or nest", func(t *testing.T) {
		assert.NotEqual(t, SafeUserID("bob|x"), SafeUserID("bob_x"))
		assert.NotContains(t, SafeUserID("alice__evil"), "__")
		assert.False(t, IsUserCollection(CollectionName("alice__evil", "nb"), "alice"))
		assert.False(t, IsUserCollection(CollectionName("bob|x", "nb"), "bob_x"))
	})
}

func TestContentHash(t *testing.T) {
	a := ContentHash("hello")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentHash("hello"))
	assert.NotEqual(t, a, ContentHash("hello!"))
}

func TestCreateFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CreateFolder(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGenerateUUID(t *testing.T) {
	id, err := GenerateUUID()
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, NewID())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}
