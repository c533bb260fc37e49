package shmpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAndLookup(t *testing.T) {
	p := NewPool(255)

	block, err := p.Allocate("das_test_block_a", 4096)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), block.Size)
	assert.Len(t, block.Bytes(), 4096)

	got, ok := p.Lookup("das_test_block_a")
	require.True(t, ok)
	assert.Equal(t, block, got)

	require.NoError(t, p.Deallocate("das_test_block_a"))
	_, ok = p.Lookup("das_test_block_a")
	assert.False(t, ok)
}

func TestAllocateDuplicateNameFails(t *testing.T) {
	p := NewPool(255)
	_, err := p.Allocate("das_test_block_b", 4096)
	require.NoError(t, err)
	defer p.Deallocate("das_test_block_b")

	_, err = p.Allocate("das_test_block_b", 4096)
	assert.Error(t, err)
}

func TestAllocateRejectsOversizedName(t *testing.T) {
	p := NewPool(4)
	_, err := p.Allocate("too_long_a_name", 4096)
	assert.Error(t, err)
}

func TestAllocateRejectsNonPositiveSize(t *testing.T) {
	p := NewPool(255)
	_, err := p.Allocate("das_test_block_c", 0)
	assert.Error(t, err)
}

func TestCleanupStaleBlocksRemovesOnlyDead(t *testing.T) {
	p := NewPool(255)
	_, err := p.Allocate("das_live", 4096)
	require.NoError(t, err)
	_, err = p.Allocate("das_dead", 4096)
	require.NoError(t, err)

	removed := p.CleanupStaleBlocks(map[string]struct{}{"das_live": {}})
	assert.ElementsMatch(t, []string{"das_dead"}, removed)

	_, ok := p.Lookup("das_live")
	assert.True(t, ok)
	_, ok = p.Lookup("das_dead")
	assert.False(t, ok)

	p.Close()
}

func TestDeallocateUnknownBlockIsNoop(t *testing.T) {
	p := NewPool(255)
	assert.NoError(t, p.Deallocate("nonexistent"))
}
