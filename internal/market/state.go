package market

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"serumdepth/internal/book"
)

// Market state account (DEX v2/v3), little endian:
//
//	offset  width  field
//	0       5      head padding "serum"
//	5       8      account flags
//	13      32     own address
//	45      8      vault signer nonce
//	53      32     base mint
//	85      32     quote mint
//	117     32     base vault
//	149     8      base deposits total
//	157     8      base fees accrued
//	165     32     quote vault
//	197     8      quote deposits total
//	205     8      quote fees accrued
//	213     8      quote dust threshold
//	221     32     request queue
//	253     32     event queue
//	285     32     bids
//	317     32     asks
//	349     8      base lot size
//	357     8      quote lot size
//	365     8      fee rate bps
//	373     8      referrer rebates accrued
//	381     7      tail padding "padding"
const StateSize = 388

type State struct {
	Flags            book.AccountFlags
	OwnAddress       solana.PublicKey
	VaultSignerNonce uint64

	BaseMint  solana.PublicKey
	QuoteMint solana.PublicKey

	BaseVault          solana.PublicKey
	BaseDepositsTotal  uint64
	BaseFeesAccrued    uint64
	QuoteVault         solana.PublicKey
	QuoteDepositsTotal uint64
	QuoteFeesAccrued   uint64
	QuoteDustThreshold uint64

	RequestQueue solana.PublicKey
	EventQueue   solana.PublicKey
	Bids         solana.PublicKey
	Asks         solana.PublicKey

	BaseLotSize            uint64
	QuoteLotSize           uint64
	FeeRateBps             uint64
	ReferrerRebatesAccrued uint64
}

func DecodeState(buf []byte) (State, error) {
	if len(buf) != StateSize {
		return State{}, &book.DecodeError{
			Reason: book.TruncatedBuffer,
			Detail: fmt.Sprintf("market state is %d bytes, want %d", len(buf), StateSize),
		}
	}
	if string(buf[:5]) != book.HeadPadding || string(buf[381:]) != book.TailPadding {
		return State{}, &book.DecodeError{Reason: book.BadMagicOrVersion, Detail: "market state padding"}
	}
	u64 := func(off int) uint64 { return binary.LittleEndian.Uint64(buf[off:]) }
	key := func(off int) solana.PublicKey { return solana.PublicKeyFromBytes(buf[off : off+32]) }

	s := State{
		Flags:                  book.AccountFlags(u64(5)),
		OwnAddress:             key(13),
		VaultSignerNonce:       u64(45),
		BaseMint:               key(53),
		QuoteMint:              key(85),
		BaseVault:              key(117),
		BaseDepositsTotal:      u64(149),
		BaseFeesAccrued:        u64(157),
		QuoteVault:             key(165),
		QuoteDepositsTotal:     u64(197),
		QuoteFeesAccrued:       u64(205),
		QuoteDustThreshold:     u64(213),
		RequestQueue:           key(221),
		EventQueue:             key(253),
		Bids:                   key(285),
		Asks:                   key(317),
		BaseLotSize:            u64(349),
		QuoteLotSize:           u64(357),
		FeeRateBps:             u64(365),
		ReferrerRebatesAccrued: u64(373),
	}
	if !s.Flags.Has(book.FlagInitialized | book.FlagMarket) {
		return State{}, &book.DecodeError{
			Reason: book.BadMagicOrVersion,
			Detail: fmt.Sprintf("market account flags %#x", uint64(s.Flags)),
		}
	}
	return s, nil
}

// SPL token mint: decimals is the byte after the 36-byte mint authority
// option and the u64 supply.
const (
	MintSize          = 82
	mintDecimalOffset = 44
)

var WrappedSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

func DecodeMintDecimals(buf []byte) (uint8, error) {
	if len(buf) < MintSize {
		return 0, &book.DecodeError{
			Reason: book.TruncatedBuffer,
			Detail: fmt.Sprintf("mint is %d bytes, want %d", len(buf), MintSize),
		}
	}
	return buf[mintDecimalOffset], nil
}
