// Package market resolves a DEX market account into the addresses and
// parameters of its order book.
package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"serumdepth/internal/book"
	"serumdepth/internal/common"
)

type AccountFetcher interface {
	AccountData(ctx context.Context, address solana.PublicKey) ([]byte, uint64, error)
}

type Market struct {
	Address       solana.PublicKey
	State         State
	BaseDecimals  uint8
	QuoteDecimals uint8
}

// BookAddress returns the order book account of one side.
func (m Market) BookAddress(side book.Side) solana.PublicKey {
	if side == book.Bid {
		return m.State.Bids
	}
	return m.State.Asks
}

func (m Market) Params() book.MarketParams {
	return book.MarketParams{
		BaseLotSize:   m.State.BaseLotSize,
		QuoteLotSize:  m.State.QuoteLotSize,
		BaseDecimals:  m.BaseDecimals,
		QuoteDecimals: m.QuoteDecimals,
	}
}

func (m Market) Codec() book.Codec {
	return book.NewCodec(m.Params())
}

type Options struct {
	Logger zerolog.Logger
}

type Resolver struct {
	fetcher AccountFetcher
	opts    Options
}

func NewResolver(fetcher AccountFetcher, options ...common.Option) (*Resolver, error) {
	opts := Options{Logger: zerolog.Nop()}
	if err := common.Apply(&opts, options...); err != nil {
		return nil, err
	}
	return &Resolver{fetcher: fetcher, opts: opts}, nil
}

func (r *Resolver) Resolve(ctx context.Context, address solana.PublicKey) (Market, error) {
	buf, _, err := r.fetcher.AccountData(ctx, address)
	if err != nil {
		return Market{}, fmt.Errorf("market: load %s: %w", address, err)
	}
	state, err := DecodeState(buf)
	if err != nil {
		return Market{}, fmt.Errorf("market: decode %s: %w", address, err)
	}
	m := Market{Address: address, State: state}
	if m.BaseDecimals, err = r.mintDecimals(ctx, state.BaseMint); err != nil {
		return Market{}, err
	}
	if m.QuoteDecimals, err = r.mintDecimals(ctx, state.QuoteMint); err != nil {
		return Market{}, err
	}
	r.opts.Logger.Info().
		Stringer("market", address).
		Stringer("bids", state.Bids).
		Stringer("asks", state.Asks).
		Uint64("base_lot", state.BaseLotSize).
		Uint64("quote_lot", state.QuoteLotSize).
		Uint8("base_decimals", m.BaseDecimals).
		Uint8("quote_decimals", m.QuoteDecimals).
		Msg("market resolved")
	return m, nil
}

func (r *Resolver) mintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	if mint.Equals(WrappedSOLMint) {
		return 9, nil
	}
	buf, _, err := r.fetcher.AccountData(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("market: load mint %s: %w", mint, err)
	}
	d, err := DecodeMintDecimals(buf)
	if err != nil {
		return 0, fmt.Errorf("market: decode mint %s: %w", mint, err)
	}
	return d, nil
}
