package guid

// FNV-1a 32-bit constants, matching the original IPC header's method and
// interface hashing exactly (these must not be swapped for hash/fnv's
// internal implementation, which normalizes nothing and operates on raw
// bytes only).
const (
	fnvPrime32      uint32 = 0x01000193
	fnvOffsetBasis32 uint32 = 0x811c9dc5
)

// FNV1a32 hashes bytes using 32-bit FNV-1a.
func FNV1a32(data []byte) uint32 {
	h := fnvOffsetBasis32
	for _, b := range data {
		h ^= uint32(b)
		h *= fnvPrime32
	}
	return h
}

// FNV1a32String hashes a method name into the wire method_hash field.
func FNV1a32String(s string) uint32 {
	return FNV1a32([]byte(s))
}

// FNV1a32Guid hashes a GUID's canonical text into the 32-bit interface_id
// used for wire dispatch. The text is normalized (braces stripped, case
// folded) before hashing so equivalent textual forms of the same GUID
// always produce the same interface_id.
func FNV1a32Guid(text string) uint32 {
	return FNV1a32([]byte(normalizeGuidText(text)))
}

// InterfaceID returns the 32-bit wire interface id for a Guid's canonical
// string form.
func (g Guid) InterfaceID() uint32 {
	return FNV1a32Guid(g.String())
}
