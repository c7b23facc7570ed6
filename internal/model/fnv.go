package model

import "hash/fnv"

// EmptyHash is the FNV-1 offset basis: the hash of the empty string. Words
// with this value are padding, never references.
const EmptyHash uint32 = 0x811C9DC5

// FNV1 hashes b with 32-bit FNV-1 (multiply, then xor).
func FNV1(b []byte) uint32 {
	h := fnv.New32()
	h.Write(b)
	return h.Sum32()
}

func FNV1String(s string) uint32 {
	return FNV1([]byte(s))
}
