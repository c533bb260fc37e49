// Package shmpool manages the named, memfd-backed shared-memory blocks
// used to carry message bodies too large to fit inline in a queue frame.
// The allocation strategy is adapted from a raw anonymous/device mmap
// queue-buffer allocator, reworked against the typed
// golang.org/x/sys/unix wrappers and memfd-backed named regions instead
// of a block-device fd.
package shmpool

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Block is a single mapped shared-memory region.
type Block struct {
	Name              string
	Size              int64
	MappedBaseAddress uintptr

	fd   int
	data []byte
}

// Bytes returns the mapped region as a byte slice.
func (b *Block) Bytes() []byte {
	return b.data
}

// Pool tracks the set of live shared-memory blocks for one host process.
type Pool struct {
	mu          sync.Mutex
	blocks      map[string]*Block
	maxBlockLen int
}

// NewPool constructs an empty pool. maxNameLen bounds block name length
// per the external interface contract.
func NewPool(maxNameLen int) *Pool {
	return &Pool{
		blocks:      make(map[string]*Block),
		maxBlockLen: maxNameLen,
	}
}

// Allocate creates and maps a new named block of the given size. The name
// must be unique within the pool.
func (p *Pool) Allocate(name string, size int64) (*Block, error) {
	if len(name) > p.maxBlockLen {
		return nil, fmt.Errorf("shmpool: block name %q exceeds %d bytes", name, p.maxBlockLen)
	}
	if size <= 0 {
		return nil, fmt.Errorf("shmpool: invalid block size %d", size)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.blocks[name]; exists {
		return nil, fmt.Errorf("shmpool: block %q already allocated", name)
	}

	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("shmpool: memfd_create %q: %w", name, err)
	}

	if err := unix.Ftruncate(fd, size); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("shmpool: ftruncate %q to %d: %w", name, size, err)
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("shmpool: mmap %q: %w", name, err)
	}

	block := &Block{
		Name:              name,
		Size:              size,
		MappedBaseAddress: uintptr(unsafePointer(data)),
		fd:                fd,
		data:              data,
	}
	p.blocks[name] = block
	return block, nil
}

// Deallocate unmaps and closes the named block. It is a no-op if the
// block is not present (idempotent under duplicate cleanup calls).
func (p *Pool) Deallocate(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	block, ok := p.blocks[name]
	if !ok {
		return nil
	}
	delete(p.blocks, name)
	return unmapAndClose(block)
}

// Lookup returns the block registered under name, if any.
func (p *Pool) Lookup(name string) (*Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blocks[name]
	return b, ok
}

// CleanupStaleBlocks releases every block whose name is not present in
// live, the set of block names a connection manager still considers
// owned by a reachable peer. It returns the names it removed.
func (p *Pool) CleanupStaleBlocks(live map[string]struct{}) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []string
	for name, block := range p.blocks {
		if _, ok := live[name]; ok {
			continue
		}
		if err := unmapAndClose(block); err == nil {
			removed = append(removed, name)
		}
		delete(p.blocks, name)
	}
	return removed
}

// Close releases every block in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, block := range p.blocks {
		_ = unmapAndClose(block)
		delete(p.blocks, name)
	}
}

func unmapAndClose(b *Block) error {
	if err := unix.Munmap(b.data); err != nil {
		return fmt.Errorf("shmpool: munmap %q: %w", b.Name, err)
	}
	return unix.Close(b.fd)
}
