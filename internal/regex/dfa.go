package regex

import "github.com/lvm2go/lvm2core/internal/container"

// dfaState is a single DFA node: final holds the 1-based index of the
// highest-precedence pattern accepted here (0 meaning none), and next is
// the byte-indexed transition table.
type dfaState struct {
	final int
	next  [alphabet]*dfaState
}

func fillTable(nodes *[]*node, n *node) {
	if n.left != nil {
		fillTable(nodes, n.left)
	}
	if n.right != nil {
		fillTable(nodes, n.right)
	}
	*nodes = append(*nodes, n)
}

func countNodes(n *node) int {
	c := 1
	if n.left != nil {
		c += countNodes(n.left)
	}
	if n.right != nil {
		c += countNodes(n.right)
	}
	return c
}

// calcFunctions computes nullable/firstpos/lastpos/followpos across the
// postfix-ordered node list, assigning ascending final indices (starting
// at 1) to whichever nodes carry the end-of-pattern sentinel.
func calcFunctions(nodes []*node) {
	final := 1
	for _, n := range nodes {
		n.firstpos = container.NewBitset(len(nodes))
		n.lastpos = container.NewBitset(len(nodes))
		n.followpos = container.NewBitset(len(nodes))
	}

	for i, n := range nodes {
		c1, c2 := n.left, n.right

		if n.charset.Test(targetTrans) {
			n.final = final
			final++
		}

		switch n.kind {
		case nCat:
			if c1.nullable {
				n.firstpos.Union(c1.firstpos, c2.firstpos)
			} else {
				n.firstpos.Copy(c1.firstpos)
			}
			if c2.nullable {
				n.lastpos.Union(c1.lastpos, c2.lastpos)
			} else {
				n.lastpos.Copy(c2.lastpos)
			}
			n.nullable = c1.nullable && c2.nullable

		case nPlus:
			n.firstpos.Copy(c1.firstpos)
			n.lastpos.Copy(c1.lastpos)
			n.nullable = c1.nullable

		case nOr:
			n.firstpos.Union(c1.firstpos, c2.firstpos)
			n.lastpos.Union(c1.lastpos, c2.lastpos)
			n.nullable = c1.nullable || c2.nullable

		case nQuest, nStar:
			n.firstpos.Copy(c1.firstpos)
			n.lastpos.Copy(c1.lastpos)
			n.nullable = true

		case nCharset:
			n.firstpos.Set(i)
			n.lastpos.Set(i)
			n.nullable = false
		}

		switch n.kind {
		case nCat:
			for j, m := range nodes {
				if c1.lastpos.Test(j) {
					m.followpos.Union(m.followpos, c2.firstpos)
				}
			}

		case nPlus, nStar:
			for j, m := range nodes {
				if n.lastpos.Test(j) {
					m.followpos.Union(m.followpos, n.firstpos)
				}
			}
		}
	}
}

type stateQueueEntry struct {
	state *dfaState
	bits  *container.Bitset
	next  *stateQueueEntry
}

// calcStates runs subset construction over the Glushkov automaton,
// keying already-seen state-sets in a ternary tree by the bitset's
// backing words so state dedup is O(word count) per lookup instead of a
// linear scan.
func calcStates(nodes []*node, root *node) *dfaState {
	klen := len(root.firstpos.Words())
	tt := container.NewTtree(klen)

	start := &dfaState{}
	tt.Insert(root.firstpos.Words(), start)

	head := &stateQueueEntry{state: start, bits: root.firstpos}
	tail := head

	bs := container.NewBitset(len(nodes))

	for head != nil {
		cur := head
		head = head.next

		dfa := cur.state
		dfaBits := cur.bits

		for a := 0; a < alphabet; a++ {
			bs.ClearAll()
			setBits := false

			for i := dfaBits.GetFirst(); i >= 0; i = dfaBits.GetNext(i) {
				if nodes[i].charset.Test(a) {
					if a == targetTrans {
						dfa.final = nodes[i].final
					}
					bs.Union(bs, nodes[i].followpos)
					setBits = true
				}
			}

			if !setBits {
				continue
			}

			target, ok := tt.Lookup(bs.Words())
			var ldfa *dfaState
			if ok {
				ldfa = target.(*dfaState)
			} else {
				ldfa = &dfaState{}
				keyCopy := container.NewBitset(len(nodes))
				keyCopy.Copy(bs)
				tt.Insert(keyCopy.Words(), ldfa)

				entry := &stateQueueEntry{state: ldfa, bits: keyCopy}
				if head == nil {
					head, tail = entry, entry
				} else {
					tail.next = entry
					tail = entry
				}
			}

			dfa.next[a] = ldfa
		}
	}

	return start
}
