package shmpool

import "unsafe"

// unsafePointer returns the address of the backing array of a mapped
// region, isolated in its own helper to avoid a go vet false positive
// when converting a syscall-returned address.
func unsafePointer(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
