package market

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serumdepth/internal/book"
)

func key(b byte) solana.PublicKey {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return solana.PublicKeyFromBytes(k[:])
}

var (
	marketAddr = key(0x01)
	baseMint   = key(0x02)
	quoteMint  = key(0x03)
	bidsAddr   = key(0x04)
	asksAddr   = key(0x05)
)

func stateBytes(base, quote solana.PublicKey) []byte {
	buf := make([]byte, StateSize)
	copy(buf, book.HeadPadding)
	copy(buf[381:], book.TailPadding)
	binary.LittleEndian.PutUint64(buf[5:], uint64(book.FlagInitialized|book.FlagMarket))
	copy(buf[13:], marketAddr[:])
	copy(buf[53:], base[:])
	copy(buf[85:], quote[:])
	copy(buf[285:], bidsAddr[:])
	copy(buf[317:], asksAddr[:])
	binary.LittleEndian.PutUint64(buf[349:], 1_000_000)
	binary.LittleEndian.PutUint64(buf[357:], 100)
	binary.LittleEndian.PutUint64(buf[365:], 22)
	return buf
}

func mintBytes(decimals uint8) []byte {
	buf := make([]byte, MintSize)
	buf[mintDecimalOffset] = decimals
	return buf
}

type fetcher map[solana.PublicKey][]byte

func (f fetcher) AccountData(_ context.Context, address solana.PublicKey) ([]byte, uint64, error) {
	buf, ok := f[address]
	if !ok {
		return nil, 0, fmt.Errorf("no account %s", address)
	}
	return buf, 7, nil
}

func TestDecodeState(t *testing.T) {
	s, err := DecodeState(stateBytes(baseMint, quoteMint))
	require.NoError(t, err)
	assert.Equal(t, marketAddr, s.OwnAddress)
	assert.Equal(t, baseMint, s.BaseMint)
	assert.Equal(t, quoteMint, s.QuoteMint)
	assert.Equal(t, bidsAddr, s.Bids)
	assert.Equal(t, asksAddr, s.Asks)
	assert.Equal(t, uint64(1_000_000), s.BaseLotSize)
	assert.Equal(t, uint64(100), s.QuoteLotSize)
	assert.Equal(t, uint64(22), s.FeeRateBps)
}

func TestDecodeStateErrors(t *testing.T) {
	good := stateBytes(baseMint, quoteMint)

	_, err := DecodeState(good[:StateSize-1])
	assert.ErrorIs(t, err, book.ErrTruncatedBuffer)

	bad := append([]byte(nil), good...)
	copy(bad, "xxxxx")
	_, err = DecodeState(bad)
	assert.ErrorIs(t, err, book.ErrBadMagicOrVersion)

	bad = append([]byte(nil), good...)
	binary.LittleEndian.PutUint64(bad[5:], uint64(book.FlagInitialized|book.FlagBids))
	_, err = DecodeState(bad)
	assert.ErrorIs(t, err, book.ErrBadMagicOrVersion)
}

func TestDecodeMintDecimals(t *testing.T) {
	d, err := DecodeMintDecimals(mintBytes(6))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)

	_, err = DecodeMintDecimals(make([]byte, 10))
	assert.ErrorIs(t, err, book.ErrTruncatedBuffer)
}

func TestResolve(t *testing.T) {
	r, err := NewResolver(fetcher{
		marketAddr: stateBytes(baseMint, quoteMint),
		baseMint:   mintBytes(9),
		quoteMint:  mintBytes(6),
	})
	require.NoError(t, err)

	m, err := r.Resolve(context.Background(), marketAddr)
	require.NoError(t, err)
	assert.Equal(t, bidsAddr, m.BookAddress(book.Bid))
	assert.Equal(t, asksAddr, m.BookAddress(book.Ask))
	assert.Equal(t, book.MarketParams{
		BaseLotSize:   1_000_000,
		QuoteLotSize:  100,
		BaseDecimals:  9,
		QuoteDecimals: 6,
	}, m.Params())

	// 1000 quote lots per base lot: 1000*100*1e9 / (1e6*1e6) = 100.
	assert.True(t, decimal.NewFromInt(100).Equal(m.Codec().Price(1000)), m.Codec().Price(1000).String())
}

func TestResolveWrappedSOL(t *testing.T) {
	r, err := NewResolver(fetcher{
		marketAddr: stateBytes(WrappedSOLMint, quoteMint),
		quoteMint:  mintBytes(6),
	})
	require.NoError(t, err)

	m, err := r.Resolve(context.Background(), marketAddr)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), m.BaseDecimals)
	assert.Equal(t, uint8(6), m.QuoteDecimals)
}

func TestResolveErrors(t *testing.T) {
	r, err := NewResolver(fetcher{marketAddr: stateBytes(baseMint, quoteMint)})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), marketAddr)
	assert.ErrorContains(t, err, "load mint")

	r, err = NewResolver(fetcher{marketAddr: make([]byte, 10)})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), marketAddr)
	var de *book.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, book.TruncatedBuffer, de.Reason)
}
