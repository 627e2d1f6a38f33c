package fs

import "hash/fnv"

// CombineHash folds a child name into its parent's stable hash, giving
// every Entry a hash that depends only on its path from root (§8 invariant
// 4) without needing to recompute the whole path string on every call.
func CombineHash(parent uint64, name string) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(parent >> (8 * i))
	}
	h.Write(buf[:])
	h.Write([]byte(name))
	return h.Sum64()
}

// RootHash is the fixed hash assigned to every filesystem's root entry.
const RootHash uint64 = 0xcbf29ce484222325 // FNV offset basis
