package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(100, 101, -5, 100)
	assert.Equal(t, []int{0, 100, 101}, r.IDs())
	assert.True(t, r.IsAccountExists(SystemUserID))
	assert.False(t, r.IsAccountExists(102))

	assert.True(t, r.Add(102))
	assert.False(t, r.Add(102))
	assert.True(t, r.IsAccountExists(102))

	assert.True(t, r.Remove(101))
	assert.False(t, r.Remove(101))
	assert.False(t, r.Remove(SystemUserID))
	assert.Equal(t, []int{0, 100, 102}, r.IDs())
}
