// Package chain talks Solana JSON-RPC: account pubsub over websocket and
// account reads over HTTP.
package chain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"
	"github.com/valyala/fastjson"

	"serumdepth/internal/feed"
)

var (
	ErrClosed          = errors.New("chain: connection closed")
	ErrMalformedFrame  = errors.New("chain: malformed frame")
	ErrAccountNotFound = errors.New("chain: account not found")
)

const DefaultCommitment = "confirmed"

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain: rpc error %d: %s", e.Code, e.Message)
}

func rpcError(v *fastjson.Value) *RPCError {
	return &RPCError{
		Code:    v.GetInt("code"),
		Message: string(v.GetStringBytes("message")),
	}
}

var zstdDecoder struct {
	once sync.Once
	dec  *zstd.Decoder
	err  error
}

func unzstd(b []byte) ([]byte, error) {
	zstdDecoder.once.Do(func() {
		zstdDecoder.dec, zstdDecoder.err = zstd.NewReader(nil)
	})
	if zstdDecoder.err != nil {
		return nil, zstdDecoder.err
	}
	return zstdDecoder.dec.DecodeAll(b, nil)
}

// decodeData decodes the "data" member of an account value: either
// [payload, encoding] or a bare base58 string.
func decodeData(v *fastjson.Value) ([]byte, error) {
	if v == nil {
		return nil, errors.New("no account data")
	}
	switch v.Type() {
	case fastjson.TypeString:
		return base58.Decode(string(v.GetStringBytes()))
	case fastjson.TypeArray:
	case fastjson.TypeObject:
		return nil, errors.New("account data is parsed JSON, not a raw account")
	default:
		return nil, fmt.Errorf("account data of type %s", v.Type())
	}
	arr := v.GetArray()
	if len(arr) != 2 {
		return nil, fmt.Errorf("account data array of length %d", len(arr))
	}
	payload, enc := arr[0].GetStringBytes(), arr[1].GetStringBytes()
	switch feed.Encoding(enc) {
	case feed.EncodingBase64:
		return base64.StdEncoding.DecodeString(string(payload))
	case feed.EncodingBase64Zstd:
		z, err := base64.StdEncoding.DecodeString(string(payload))
		if err != nil {
			return nil, err
		}
		return unzstd(z)
	case feed.EncodingBase58, "binary":
		return base58.Decode(string(payload))
	}
	return nil, fmt.Errorf("unknown account data encoding %q", enc)
}
