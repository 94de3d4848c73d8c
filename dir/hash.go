package dir

import "hash/fnv"

// Hash returns the slot hash of name: 32-bit FNV-1a reduced modulo
// 0xFFFF, so it never equals the empty slot marker.
func Hash(name string) uint16 {
	h := fnv.New32a()
	h.Write([]byte(name))

	v := h.Sum32() % emptyHash
	if v == emptyHash {
		v = 0
	}
	return uint16(v)
}
