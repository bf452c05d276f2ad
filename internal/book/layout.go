package book

import "encoding/binary"

// Order book side account, little endian, compatible with DEX v2/v3:
//
//	offset  width  field
//	0       5      head padding "serum"
//	5       8      account flags
//	13      4      bump index (slots ever allocated)
//	17      4      zero
//	21      4      free list length
//	25      4      zero
//	29      4      free list head
//	33      4      root slot
//	37      4      leaf count
//	41      4      zero
//	45      72*n   node slots
//	len-7   7      tail padding "padding"
//
// Node slot:
//
//	offset  width  inner        leaf             free
//	0       4      tag=1        tag=2            tag=3|4
//	4       4      prefix len   owner slot u8,   next slot
//	                            fee tier u8
//	8       16     key u128     key u128
//	24      8      children     owner [32]byte
//	56      8                   quantity u64
//	64      8                   client order id
type field struct {
	offset, width int
}

func (f field) bytes(b []byte) []byte {
	return b[f.offset : f.offset+f.width]
}

func (f field) u8(b []byte) uint8 {
	return b[f.offset]
}

func (f field) u32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b[f.offset:])
}

func (f field) u64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b[f.offset:])
}

func (f field) key(b []byte) OrderID {
	return OrderID{
		Lo: binary.LittleEndian.Uint64(b[f.offset:]),
		Hi: binary.LittleEndian.Uint64(b[f.offset+8:]),
	}
}

const (
	HeadPadding = "serum"
	TailPadding = "padding"

	HeaderSize     = 45
	NodeSize       = 72
	MinAccountSize = HeaderSize + len(TailPadding)
)

var (
	fieldHeadPadding  = field{0, 5}
	fieldAccountFlags = field{5, 8}
	fieldBumpIndex    = field{13, 4}
	fieldFreeListLen  = field{21, 4}
	fieldFreeListHead = field{29, 4}
	fieldRoot         = field{33, 4}
	fieldLeafCount    = field{37, 4}

	fieldNodeTag       = field{0, 4}
	fieldInnerPrefix   = field{4, 4}
	fieldNodeKey       = field{8, 16}
	fieldInnerChild0   = field{24, 4}
	fieldInnerChild1   = field{28, 4}
	fieldLeafOwnerSlot = field{4, 1}
	fieldLeafFeeTier   = field{5, 1}
	fieldLeafOwner     = field{24, 32}
	fieldLeafQuantity  = field{56, 8}
	fieldLeafClientID  = field{64, 8}
	fieldFreeNext      = field{4, 4}
)

type nodeTag uint32

const (
	tagUninitialized nodeTag = iota
	tagInner
	tagLeaf
	tagFree
	tagLastFree
)

type AccountFlags uint64

const (
	FlagInitialized AccountFlags = 1 << iota
	FlagMarket
	FlagOpenOrders
	FlagRequestQueue
	FlagEventQueue
	FlagBids
	FlagAsks
)

func (f AccountFlags) Has(flags AccountFlags) bool {
	return f&flags == flags
}

func sideFlag(side Side) AccountFlags {
	if side == Bid {
		return FlagBids
	}
	return FlagAsks
}
