// Package booktest builds order book side accounts for tests.
package booktest

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sort"

	"github.com/gagliardetto/solana-go"

	"serumdepth/internal/book"
)

type Order struct {
	PriceLots uint64
	SizeLots  uint64
	Seq       uint64
	Owner     solana.PublicKey
	OwnerSlot uint8
	FeeTier   uint8
	ClientID  uint64
}

// Slab describes an account to build. Orders may be given in any order.
type Slab struct {
	Side   book.Side
	Orders []Order

	Free    int // free slots chained into the free list
	Spare   int // uninitialized slots past the bump index
	Reverse bool
	Flags   book.AccountFlags
}

// Build returns a well-formed account holding orders, sequence numbers
// assigned in argument order when left zero.
func Build(side book.Side, orders ...Order) []byte {
	orders = append([]Order(nil), orders...)
	for i := range orders {
		if orders[i].Seq == 0 {
			orders[i].Seq = uint64(i + 1)
		}
	}
	return Slab{Side: side, Orders: orders}.Bytes()
}

type key struct {
	hi, lo uint64
}

func (k key) less(o key) bool {
	if k.hi != o.hi {
		return k.hi < o.hi
	}
	return k.lo < o.lo
}

func (k key) bit(i int) uint64 {
	if i >= 64 {
		return (k.hi >> (i - 64)) & 1
	}
	return (k.lo >> i) & 1
}

func critBit(a, b key) int {
	if x := a.hi ^ b.hi; x != 0 {
		return 64 + 63 - bits.LeadingZeros64(x)
	}
	return 63 - bits.LeadingZeros64(a.lo^b.lo)
}

type node struct {
	tag      uint32
	prefix   uint32
	key      key
	children [2]int
	order    Order
}

type builder struct {
	side  book.Side
	nodes []node
}

func (b *builder) keyOf(o Order) key {
	if b.side == book.Bid {
		return key{hi: o.PriceLots, lo: ^o.Seq}
	}
	return key{hi: o.PriceLots, lo: o.Seq}
}

func (b *builder) tree(orders []Order) int {
	slot := len(b.nodes)
	b.nodes = append(b.nodes, node{})
	if len(orders) == 1 {
		b.nodes[slot] = node{tag: 2, key: b.keyOf(orders[0]), order: orders[0]}
		return slot
	}
	first, last := b.keyOf(orders[0]), b.keyOf(orders[len(orders)-1])
	crit := critBit(first, last)
	split := sort.Search(len(orders), func(i int) bool {
		return b.keyOf(orders[i]).bit(crit) == 1
	})
	left := b.tree(orders[:split])
	right := b.tree(orders[split:])
	b.nodes[slot] = node{
		tag:      1,
		prefix:   uint32(127 - crit),
		key:      first,
		children: [2]int{left, right},
	}
	return slot
}

func (s Slab) Bytes() []byte {
	b := &builder{side: s.Side}
	orders := append([]Order(nil), s.Orders...)
	sort.Slice(orders, func(i, j int) bool {
		return b.keyOf(orders[i]).less(b.keyOf(orders[j]))
	})
	for i := 1; i < len(orders); i++ {
		if b.keyOf(orders[i-1]) == b.keyOf(orders[i]) {
			panic(fmt.Sprintf("booktest: duplicate key price %d seq %d", orders[i].PriceLots, orders[i].Seq))
		}
	}
	root := 0
	if len(orders) > 0 {
		root = b.tree(orders)
	}
	used := len(b.nodes)
	bump := used + s.Free
	pos := func(i int) uint32 {
		if s.Reverse {
			return uint32(bump - 1 - i)
		}
		return uint32(i)
	}

	size := book.MinAccountSize + (bump+s.Spare)*book.NodeSize
	buf := make([]byte, size)
	copy(buf, book.HeadPadding)
	copy(buf[size-len(book.TailPadding):], book.TailPadding)

	flags := s.Flags
	if flags == 0 {
		flags = book.FlagInitialized | book.FlagAsks
		if s.Side == book.Bid {
			flags = book.FlagInitialized | book.FlagBids
		}
	}
	le := binary.LittleEndian
	le.PutUint64(buf[5:], uint64(flags))
	le.PutUint32(buf[13:], uint32(bump))
	le.PutUint32(buf[21:], uint32(s.Free))
	if s.Free > 0 {
		le.PutUint32(buf[29:], pos(used))
	}
	if len(orders) > 0 {
		le.PutUint32(buf[33:], pos(root))
	}
	le.PutUint32(buf[37:], uint32(len(orders)))

	for i, n := range b.nodes {
		nb := buf[book.HeaderSize+int(pos(i))*book.NodeSize:][:book.NodeSize]
		le.PutUint32(nb[0:], n.tag)
		le.PutUint64(nb[8:], n.key.lo)
		le.PutUint64(nb[16:], n.key.hi)
		switch n.tag {
		case 1:
			le.PutUint32(nb[4:], n.prefix)
			le.PutUint32(nb[24:], pos(n.children[0]))
			le.PutUint32(nb[28:], pos(n.children[1]))
		case 2:
			nb[4] = n.order.OwnerSlot
			nb[5] = n.order.FeeTier
			copy(nb[24:56], n.order.Owner[:])
			le.PutUint64(nb[56:], n.order.SizeLots)
			le.PutUint64(nb[64:], n.order.ClientID)
		}
	}
	for i := used; i < bump; i++ {
		nb := buf[book.HeaderSize+int(pos(i))*book.NodeSize:][:book.NodeSize]
		if i == bump-1 {
			le.PutUint32(nb[0:], 4)
		} else {
			le.PutUint32(nb[0:], 3)
			le.PutUint32(nb[4:], pos(i+1))
		}
	}
	return buf
}

// NodeOffset returns the byte offset of a slot in an account.
func NodeOffset(slot uint32) int {
	return book.HeaderSize + int(slot)*book.NodeSize
}

// Root returns the root slot recorded in an account header.
func Root(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[33:])
}
