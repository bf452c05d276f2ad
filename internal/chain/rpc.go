package chain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"serumdepth/internal/common"
)

type ClientOptions struct {
	Logger     zerolog.Logger
	Commitment string
	HTTPClient *http.Client
}

func OptionHTTPClient(hc *http.Client) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "HTTPClient", hc)
	}
}

// Client reads accounts through the HTTP JSON-RPC endpoint.
type Client struct {
	url     string
	opts    ClientOptions
	nextID  uint64
	parsers fastjson.ParserPool
}

func NewClient(url string, options ...common.Option) (*Client, error) {
	opts := ClientOptions{
		Logger:     zerolog.Nop(),
		Commitment: DefaultCommitment,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	if err := common.Apply(&opts, options...); err != nil {
		return nil, err
	}
	return &Client{url: url, opts: opts}, nil
}

// AccountData returns the raw data of an account and the slot it was read at.
func (c *Client) AccountData(ctx context.Context, address solana.PublicKey) ([]byte, uint64, error) {
	body := fmt.Sprintf(
		`{"jsonrpc":"2.0","id":%d,"method":"getAccountInfo","params":["%s",{"encoding":"base64","commitment":"%s"}]}`,
		atomic.AddUint64(&c.nextID, 1), address, c.opts.Commitment)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("chain: getAccountInfo %s: %w", address, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("chain: getAccountInfo %s: %w", address, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("chain: getAccountInfo %s: http %s", address, resp.Status)
	}

	p := c.parsers.Get()
	defer c.parsers.Put(p)
	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
	}
	if e := v.Get("error"); e != nil {
		return nil, 0, rpcError(e)
	}
	value := v.Get("result", "value")
	if value == nil || value.Type() == fastjson.TypeNull {
		return nil, 0, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	data, err := decodeData(value.Get("data"))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
	}
	slot := v.GetUint64("result", "context", "slot")
	c.opts.Logger.Debug().
		Stringer("address", address).
		Uint64("slot", slot).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("account loaded")
	return data, slot, nil
}
