package core

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSafe(t *testing.T) {
	v, err := AddSafe(10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)

	_, err = AddSafe(math.MaxInt64, 1)
	assert.Error(t, err)

	_, err = AddSafe(math.MinInt64, -1)
	assert.Error(t, err)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("Sales"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("   "))
}

func TestNewID_Unique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewID()
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestGenerateAPIKey_Shape(t *testing.T) {
	key := GenerateAPIKey()
	parts := strings.Split(key, "-")
	assert.Len(t, parts, 8)
	for _, p := range parts {
		assert.Len(t, p, 8)
		assert.Equal(t, strings.ToUpper(p), p)
	}
	assert.NotEqual(t, key, GenerateAPIKey())
}

func TestErrorWrappers(t *testing.T) {
	err := NotFoundf("user %s", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "u1")

	assert.ErrorIs(t, InvalidArgumentf("value %d", 0), ErrInvalidArgument)
	assert.ErrorIs(t, Conflictf("metric %q", "Sales"), ErrConflict)
}
