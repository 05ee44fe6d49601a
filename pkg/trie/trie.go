// Package trie implements the binary Patricia trie that serves
// longest-and-all-covering-prefix CIDR lookups for both IPv4 and IPv6,
// published for lock-free concurrent reads through an atomic pointer cell.
package trie

import (
	"net/netip"

	"github.com/netrep/proxyd/pkg/reputation"
)

// node is one Patricia trie node. Split (internal) nodes carry hasPayload
// == false; a node corresponding to an inserted CIDR carries hasPayload ==
// true together with its flags. The network is not stored redundantly — it
// is reconstructed from prefix/prefixLen at read time (bitsToPrefix).
type node struct {
	prefix     bits128
	prefixLen  uint8
	hasPayload bool
	flags      reputation.Flags
	children   [2]*node
}

// Match is one covering-CIDR result: the stored network and its flags.
type Match struct {
	Network netip.Prefix
	Flags   reputation.Flags
}

// Forest is the pair of trie roots for the two address families. V4 and v6
// never share nodes.
type Forest struct {
	v4 *node
	v6 *node
}

// NewForest returns an empty forest.
func NewForest() *Forest {
	return &Forest{}
}

// Insert places network/flags into the forest, splitting or overwriting
// nodes as needed (see insertNode).
func (f *Forest) Insert(network netip.Prefix, flags reputation.Flags) {
	network = network.Masked()
	if network.Addr().Is4() {
		insertNode(&f.v4, bitsFromV4(network.Addr()), uint8(network.Bits()), 32, flags)
		return
	}
	insertNode(&f.v6, bitsFromV6(network.Addr()), uint8(network.Bits()), 128, flags)
}

// FindAllMatches returns every stored CIDR whose prefix covers addr, sorted
// from shortest to longest prefix. IPv4 queries only ever traverse the v4
// root and IPv6 queries only the v6 root.
func (f *Forest) FindAllMatches(addr netip.Addr) []Match {
	if addr.Is4() {
		return findMatches(f.v4, bitsFromV4(addr), 32)
	}
	return findMatches(f.v6, bitsFromV6(addr), 128)
}

func insertNode(root **node, key bits128, prefixLen, totalBits uint8, flags reputation.Flags) {
	n := *root
	if n == nil {
		*root = &node{prefix: key, prefixLen: prefixLen, hasPayload: true, flags: flags}
		return
	}

	maxLen := n.prefixLen
	if prefixLen < maxLen {
		maxLen = prefixLen
	}
	common := commonPrefixLen(n.prefix, key, maxLen, totalBits)

	if common == n.prefixLen && common == prefixLen {
		n.hasPayload = true
		n.flags = flags
		return
	}

	if common == n.prefixLen {
		bit := getBit(key, common, totalBits)
		insertNode(&n.children[bit], key, prefixLen, totalBits, flags)
		return
	}

	old := n
	parent := &node{prefix: maskPrefix(key, common, totalBits), prefixLen: common}

	if common == prefixLen {
		parent.hasPayload = true
		parent.flags = flags
		oldBit := getBit(old.prefix, common, totalBits)
		parent.children[oldBit] = old
	} else {
		newBit := getBit(key, common, totalBits)
		oldBit := 1 - newBit
		parent.children[newBit] = &node{prefix: key, prefixLen: prefixLen, hasPayload: true, flags: flags}
		parent.children[oldBit] = old
	}

	*root = parent
}

func findMatches(root *node, ipBits bits128, totalBits uint8) []Match {
	matches := make([]Match, 0, 4)
	cur := root

	for cur != nil {
		common := commonPrefixLen(cur.prefix, ipBits, cur.prefixLen, totalBits)
		if common < cur.prefixLen {
			break
		}

		if cur.hasPayload {
			matches = append(matches, Match{
				Network: bitsToPrefix(cur.prefix, cur.prefixLen, totalBits),
				Flags:   cur.flags,
			})
		}

		if cur.prefixLen >= totalBits {
			break
		}

		bit := getBit(ipBits, cur.prefixLen, totalBits)
		cur = cur.children[bit]
	}

	return matches
}
