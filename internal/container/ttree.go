package container

// Ttree is a ternary search tree keyed by a fixed-width tuple of
// uint32s. It is used by the regex engine to key its DFA states by the
// NFA position-set (represented as that state's bitset words) that each
// one corresponds to, so that subset construction can detect an
// already-seen state set in O(klen) instead of re-hashing a variable
// length key.
type Ttree struct {
	klen int
	root *ttNode
}

type ttNode struct {
	k          uint32
	l, m, r    *ttNode
	data       any
	hasData    bool
}

func NewTtree(klen int) *Ttree {
	return &Ttree{klen: klen}
}

func lookupSingle(c **ttNode, k uint32) **ttNode {
	for *c != nil {
		switch {
		case k < (*c).k:
			c = &(*c).l
		case k > (*c).k:
			c = &(*c).r
		default:
			return c
		}
	}
	return c
}

// Lookup returns the data stored under key (len(key) must equal klen),
// or nil, false if absent.
func (tt *Ttree) Lookup(key []uint32) (any, bool) {
	c := &tt.root
	count := tt.klen
	for *c != nil && count > 0 {
		c = lookupSingle(c, key[tt.klen-count])
		count--
		if *c != nil && count > 0 {
			c = &(*c).m
		}
	}
	if *c != nil && (*c).hasData {
		return (*c).data, true
	}
	return nil, false
}

// Insert stores data under key, creating any missing path nodes.
func (tt *Ttree) Insert(key []uint32, data any) {
	c := &tt.root
	count := tt.klen
	var k uint32
	for {
		k = key[tt.klen-count]
		c = lookupSingle(c, k)
		count--
		if *c == nil || count == 0 {
			break
		}
		c = &(*c).m
	}

	if *c == nil {
		count++
		for count > 0 {
			*c = &ttNode{k: k}
			count--
			if count > 0 {
				k = key[tt.klen-count]
				c = &(*c).m
			}
		}
	}
	(*c).data = data
	(*c).hasData = true
}
