package container

// permutation is the fixed byte-mix table used to scatter hash keys,
// carried verbatim from the original hash.c so the distribution
// properties it was tuned for are preserved.
var permutation = [256]byte{
	1, 14, 110, 25, 97, 174, 132, 119, 138, 170, 125, 118, 27, 233, 140, 51,
	87, 197, 177, 107, 234, 169, 56, 68, 30, 7, 173, 73, 188, 40, 36, 65,
	49, 213, 104, 190, 57, 211, 148, 223, 48, 115, 15, 2, 67, 186, 210, 28,
	12, 181, 103, 70, 22, 58, 75, 78, 183, 167, 238, 157, 124, 147, 172, 144,
	176, 161, 141, 86, 60, 66, 128, 83, 156, 241, 79, 46, 168, 198, 41, 254,
	178, 85, 253, 237, 250, 154, 133, 88, 35, 206, 95, 116, 252, 192, 54, 221,
	102, 218, 255, 240, 82, 106, 158, 201, 61, 3, 89, 9, 42, 155, 159, 93,
	166, 80, 50, 34, 175, 195, 100, 99, 26, 150, 16, 145, 4, 33, 8, 189,
	121, 64, 77, 72, 208, 245, 130, 122, 143, 55, 105, 134, 29, 164, 185, 194,
	193, 239, 101, 242, 5, 171, 126, 11, 74, 59, 137, 228, 108, 191, 232, 139,
	6, 24, 81, 20, 127, 17, 91, 92, 251, 151, 225, 207, 21, 98, 113, 112,
	84, 226, 18, 214, 199, 187, 13, 32, 94, 220, 224, 212, 247, 204, 196, 43,
	249, 236, 45, 244, 111, 182, 153, 136, 129, 90, 217, 202, 19, 165, 231, 71,
	230, 142, 96, 227, 62, 179, 246, 114, 162, 53, 160, 215, 205, 180, 47, 109,
	44, 38, 31, 149, 135, 0, 216, 52, 63, 23, 37, 69, 39, 117, 146, 184,
	163, 200, 222, 235, 248, 243, 219, 10, 152, 131, 123, 229, 203, 76, 120, 209,
}

func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h <<= 4
		h += uint32(permutation[s[i]])
		g := h & (0xf << 16)
		if g != 0 {
			h ^= g >> 16
			h ^= g >> 5
		}
	}
	return h
}

type hashNode struct {
	key  string
	data any
	next *hashNode
}

// Hash is a string-keyed hash table sized to the next power of two of a
// caller-supplied hint, matching the original hash_create/_hash pairing.
type Hash struct {
	slots []*hashNode
	count int
}

// NewHash creates a hash table with at least sizeHint slots.
func NewHash(sizeHint int) *Hash {
	size := 16
	for size < sizeHint {
		size <<= 1
	}
	return &Hash{slots: make([]*hashNode, size)}
}

func (h *Hash) slot(key string) int {
	return int(hashString(key)) & (len(h.slots) - 1)
}

func (h *Hash) find(key string) (**hashNode, *hashNode) {
	s := h.slot(key)
	cur := &h.slots[s]
	for *cur != nil {
		if (*cur).key == key {
			return cur, *cur
		}
		cur = &(*cur).next
	}
	return cur, nil
}

// Lookup returns the value stored under key, or nil if absent.
func (h *Hash) Lookup(key string) any {
	_, n := h.find(key)
	if n == nil {
		return nil
	}
	return n.data
}

// Insert stores data under key, overwriting any previous value.
func (h *Hash) Insert(key string, data any) {
	slot, n := h.find(key)
	if n != nil {
		n.data = data
		return
	}
	*slot = &hashNode{key: key, data: data}
	h.count++
}

// Remove deletes key if present.
func (h *Hash) Remove(key string) {
	s := h.slot(key)
	cur := &h.slots[s]
	for *cur != nil {
		if (*cur).key == key {
			*cur = (*cur).next
			h.count--
			return
		}
		cur = &(*cur).next
	}
}

func (h *Hash) NumEntries() int { return h.count }

// Iterate calls f for every (key, value) pair. Order is unspecified.
func (h *Hash) Iterate(f func(key string, data any)) {
	for _, n := range h.slots {
		for c := n; c != nil; c = c.next {
			f(c.key, c.data)
		}
	}
}

// Wipe removes every entry.
func (h *Hash) Wipe() {
	for i := range h.slots {
		h.slots[i] = nil
	}
	h.count = 0
}
