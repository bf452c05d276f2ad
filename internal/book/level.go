package book

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// OrderID is the 128-bit slab key of an order: price in lots in the high
// half, sequence number in the low half (complemented on the bid side).
type OrderID struct {
	Hi, Lo uint64
}

func (id OrderID) PriceLots() uint64 {
	return id.Hi
}

// Seq returns the exchange sequence number of the order on the given side.
func (id OrderID) Seq(side Side) uint64 {
	if side == Bid {
		return ^id.Lo
	}
	return id.Lo
}

func (id OrderID) Less(other OrderID) bool {
	if id.Hi != other.Hi {
		return id.Hi < other.Hi
	}
	return id.Lo < other.Lo
}

// Bytes returns the little endian u128 encoding used on chain.
func (id OrderID) Bytes() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], id.Lo)
	binary.LittleEndian.PutUint64(b[8:16], id.Hi)
	return b
}

func (id OrderID) String() string {
	b := id.Bytes()
	return hex.EncodeToString(b[:])
}

type PriceLevel struct {
	OrderID OrderID
	Price   decimal.Decimal
	Size    decimal.Decimal

	PriceLots uint64
	SizeLots  uint64

	Owner         solana.PublicKey
	OwnerSlot     uint8
	FeeTier       uint8
	ClientOrderID uint64
}

// Snapshot is a complete view of one side of the book, best price first.
type Snapshot struct {
	Side   Side
	Levels []PriceLevel
}

func (s Snapshot) Len() int {
	return len(s.Levels)
}

func (s Snapshot) Empty() bool {
	return len(s.Levels) == 0
}

func (s Snapshot) Best() (PriceLevel, bool) {
	if len(s.Levels) == 0 {
		return PriceLevel{}, false
	}
	return s.Levels[0], true
}

func (s Snapshot) TotalSize() decimal.Decimal {
	total := decimal.Zero
	for _, pl := range s.Levels {
		total = total.Add(pl.Size)
	}
	return total
}

// CheckOrder verifies price-time priority: bids non-increasing, asks
// non-decreasing by price, ties ordered by sequence number.
func (s Snapshot) CheckOrder() error {
	if !s.Side.Valid() {
		return decodeErr(CorruptTreeStructure, "invalid side %d", int8(s.Side))
	}
	for i := 1; i < len(s.Levels); i++ {
		prev, cur := s.Levels[i-1], s.Levels[i]
		switch {
		case s.Side == Bid && cur.PriceLots > prev.PriceLots,
			s.Side == Ask && cur.PriceLots < prev.PriceLots:
			return decodeErr(CorruptTreeStructure, "%s level %d price %d out of order after %d",
				s.Side, i, cur.PriceLots, prev.PriceLots)
		case cur.PriceLots == prev.PriceLots && cur.OrderID.Seq(s.Side) <= prev.OrderID.Seq(s.Side):
			return decodeErr(CorruptTreeStructure, "%s level %d breaks time priority at price %d",
				s.Side, i, cur.PriceLots)
		}
	}
	return nil
}

// L2Level is the aggregate of all orders resting at one price.
type L2Level struct {
	Price     decimal.Decimal
	Size      decimal.Decimal
	PriceLots uint64
	SizeLots  uint64
	Orders    int
}

// L2 merges orders at equal prices, keeping at most depth levels (all if depth <= 0).
func (s Snapshot) L2(depth int) []L2Level {
	var levels []L2Level
	for _, pl := range s.Levels {
		if n := len(levels); n > 0 && levels[n-1].PriceLots == pl.PriceLots {
			levels[n-1].Size = levels[n-1].Size.Add(pl.Size)
			levels[n-1].SizeLots += pl.SizeLots
			levels[n-1].Orders++
			continue
		}
		if depth > 0 && len(levels) == depth {
			break
		}
		levels = append(levels, L2Level{
			Price:     pl.Price,
			Size:      pl.Size,
			PriceLots: pl.PriceLots,
			SizeLots:  pl.SizeLots,
			Orders:    1,
		})
	}
	return levels
}
