package book

import (
	"math"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// MarketParams converts lot units into human units. The zero value keeps lots.
type MarketParams struct {
	BaseLotSize   uint64
	QuoteLotSize  uint64
	BaseDecimals  uint8
	QuoteDecimals uint8
}

// Codec decodes order book side accounts of one market. It holds no state
// besides the conversion factors and is safe for concurrent use.
type Codec struct {
	params MarketParams
	scaled bool

	priceNum decimal.Decimal
	priceDen decimal.Decimal
	sizeMul  decimal.Decimal
}

func NewCodec(params MarketParams) Codec {
	if params.BaseLotSize == 0 || params.QuoteLotSize == 0 {
		return Codec{params: params}
	}
	return Codec{
		params:   params,
		scaled:   true,
		priceNum: fromU64(params.QuoteLotSize).Shift(int32(params.BaseDecimals)),
		priceDen: fromU64(params.BaseLotSize).Shift(int32(params.QuoteDecimals)),
		sizeMul:  fromU64(params.BaseLotSize).Shift(-int32(params.BaseDecimals)),
	}
}

func (c Codec) Params() MarketParams {
	return c.params
}

func (c Codec) Price(lots uint64) decimal.Decimal {
	if !c.scaled {
		return fromU64(lots)
	}
	return fromU64(lots).Mul(c.priceNum).Div(c.priceDen)
}

func (c Codec) Size(lots uint64) decimal.Decimal {
	if !c.scaled {
		return fromU64(lots)
	}
	return fromU64(lots).Mul(c.sizeMul)
}

// Decode decodes buf in lot units.
func Decode(buf []byte, side Side) (Snapshot, error) {
	return Codec{}.Decode(buf, side)
}

// Decode parses an order book side account into levels in price-time
// priority: bids best (highest) first, asks best (lowest) first.
func (c Codec) Decode(buf []byte, side Side) (Snapshot, error) {
	if !side.Valid() {
		return Snapshot{}, decodeErr(BadMagicOrVersion, "invalid side %d", int8(side))
	}
	s, err := parseSlab(buf, side)
	if err != nil {
		return Snapshot{}, err
	}
	leaves, err := s.walk(side == Bid)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Side: side}
	if len(leaves) == 0 {
		return snap, nil
	}
	snap.Levels = make([]PriceLevel, len(leaves))
	for i, n := range leaves {
		key := fieldNodeKey.key(n)
		qty := fieldLeafQuantity.u64(n)
		snap.Levels[i] = PriceLevel{
			OrderID:       key,
			Price:         c.Price(key.PriceLots()),
			Size:          c.Size(qty),
			PriceLots:     key.PriceLots(),
			SizeLots:      qty,
			Owner:         solana.PublicKeyFromBytes(fieldLeafOwner.bytes(n)),
			OwnerSlot:     fieldLeafOwnerSlot.u8(n),
			FeeTier:       fieldLeafFeeTier.u8(n),
			ClientOrderID: fieldLeafClientID.u64(n),
		}
	}
	return snap, nil
}

type slab struct {
	nodes     []byte
	bump      uint32
	freeLen   uint32
	freeHead  uint32
	root      uint32
	leafCount uint32
}

func parseSlab(buf []byte, side Side) (*slab, error) {
	if len(buf) < MinAccountSize {
		return nil, decodeErr(TruncatedBuffer, "need at least %d bytes, have %d", MinAccountSize, len(buf))
	}
	if string(fieldHeadPadding.bytes(buf)) != HeadPadding {
		return nil, decodeErr(BadMagicOrVersion, "head padding %q", fieldHeadPadding.bytes(buf))
	}
	region := len(buf) - MinAccountSize
	if region%NodeSize != 0 {
		return nil, decodeErr(TruncatedBuffer, "node region of %d bytes is not a multiple of %d", region, NodeSize)
	}
	if tail := buf[len(buf)-len(TailPadding):]; string(tail) != TailPadding {
		return nil, decodeErr(BadMagicOrVersion, "tail padding %q", tail)
	}
	flags := AccountFlags(fieldAccountFlags.u64(buf))
	if !flags.Has(FlagInitialized|sideFlag(side)) || flags.Has(sideFlag(side.Opposite())) {
		return nil, decodeErr(BadMagicOrVersion, "account flags %#x for %s side", uint64(flags), side)
	}
	s := &slab{
		nodes:     buf[HeaderSize : len(buf)-len(TailPadding)],
		bump:      fieldBumpIndex.u32(buf),
		freeLen:   fieldFreeListLen.u32(buf),
		freeHead:  fieldFreeListHead.u32(buf),
		root:      fieldRoot.u32(buf),
		leafCount: fieldLeafCount.u32(buf),
	}
	if capacity := uint32(region / NodeSize); s.bump > capacity {
		return nil, decodeErr(TruncatedBuffer, "bump index %d exceeds capacity %d", s.bump, capacity)
	}
	if s.freeLen > s.bump || s.leafCount > s.bump {
		return nil, decodeErr(CorruptTreeStructure, "free list %d, leaves %d, bump index %d",
			s.freeLen, s.leafCount, s.bump)
	}
	return s, nil
}

func (s *slab) node(i uint32) []byte {
	off := int(i) * NodeSize
	return s.nodes[off : off+NodeSize]
}

// walk returns leaf slots in key order, validating the free list and the tree.
func (s *slab) walk(descending bool) ([][]byte, error) {
	seen := make([]bool, s.bump)

	for i, next := uint32(0), s.freeHead; i < s.freeLen; i++ {
		if next >= s.bump {
			return nil, decodeErr(CorruptTreeStructure, "free slot %d out of range", next)
		}
		if seen[next] {
			return nil, decodeErr(CorruptTreeStructure, "free list cycles at slot %d", next)
		}
		seen[next] = true
		n := s.node(next)
		if tag := nodeTag(fieldNodeTag.u32(n)); tag != tagFree && tag != tagLastFree {
			return nil, decodeErr(CorruptTreeStructure, "free list reaches slot %d with tag %d", next, tag)
		}
		next = fieldFreeNext.u32(n)
	}

	if s.leafCount == 0 {
		return nil, nil
	}

	leaves := make([][]byte, 0, s.leafCount)
	var prev OrderID
	stack := make([]uint32, 1, 64)
	stack[0] = s.root
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if i >= s.bump {
			return nil, decodeErr(CorruptTreeStructure, "slot %d out of range, bump index %d", i, s.bump)
		}
		if seen[i] {
			return nil, decodeErr(CorruptTreeStructure, "slot %d reached twice", i)
		}
		seen[i] = true

		n := s.node(i)
		switch tag := nodeTag(fieldNodeTag.u32(n)); tag {
		case tagInner:
			if fieldInnerPrefix.u32(n) >= 128 {
				return nil, decodeErr(CorruptTreeStructure, "inner slot %d prefix length %d",
					i, fieldInnerPrefix.u32(n))
			}
			lo, hi := fieldInnerChild0.u32(n), fieldInnerChild1.u32(n)
			if descending {
				stack = append(stack, lo, hi)
			} else {
				stack = append(stack, hi, lo)
			}
		case tagLeaf:
			key := fieldNodeKey.key(n)
			if len(leaves) > 0 && (descending && !key.Less(prev) || !descending && !prev.Less(key)) {
				return nil, decodeErr(CorruptTreeStructure, "key %s at slot %d out of order", key, i)
			}
			prev = key
			leaves = append(leaves, n)
		default:
			return nil, decodeErr(CorruptTreeStructure, "slot %d in tree has tag %d", i, tag)
		}
	}
	if uint32(len(leaves)) != s.leafCount {
		return nil, decodeErr(CorruptTreeStructure, "found %d leaves, header says %d", len(leaves), s.leafCount)
	}
	return leaves, nil
}

func fromU64(x uint64) decimal.Decimal {
	if x <= math.MaxInt64 {
		return decimal.NewFromInt(int64(x))
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0)
}
