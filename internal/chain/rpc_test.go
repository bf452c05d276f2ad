package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func rpcServer(t *testing.T, status int, reply string) (*httptest.Server, chan string) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, bodies
}

func TestAccountData(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	srv, bodies := rpcServer(t, http.StatusOK,
		`{"jsonrpc":"2.0","result":{"context":{"slot":1234},"value":{"data":["`+
			base64.StdEncoding.EncodeToString(payload)+`","base64"],"executable":false,"lamports":1,"owner":"11111111111111111111111111111111","rentEpoch":2}},"id":1}`)

	c, err := NewClient(srv.URL, OptionHTTPClient(&http.Client{Timeout: time.Second}))
	require.NoError(t, err)
	address := solana.PublicKeyFromBytes(make([]byte, solana.PublicKeyLength))

	data, slot, err := c.AccountData(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, uint64(1234), slot)

	var p fastjson.Parser
	v, err := p.Parse(<-bodies)
	require.NoError(t, err)
	assert.Equal(t, "getAccountInfo", string(v.GetStringBytes("method")))
	assert.Equal(t, address.String(), string(v.GetStringBytes("params", "0")))
	assert.Equal(t, "base64", string(v.GetStringBytes("params", "1", "encoding")))
	assert.Equal(t, DefaultCommitment, string(v.GetStringBytes("params", "1", "commitment")))
}

func TestAccountDataErrors(t *testing.T) {
	address := solana.PublicKeyFromBytes(make([]byte, solana.PublicKeyLength))
	tests := []struct {
		name   string
		status int
		reply  string
		check  func(t *testing.T, err error)
	}{
		{"not found", http.StatusOK, `{"jsonrpc":"2.0","result":{"context":{"slot":1},"value":null},"id":1}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrAccountNotFound) }},
		{"rpc error", http.StatusOK, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"bad"},"id":1}`,
			func(t *testing.T, err error) {
				var re *RPCError
				require.True(t, errors.As(err, &re))
				assert.Equal(t, -32600, re.Code)
			}},
		{"http status", http.StatusBadGateway, `oops`,
			func(t *testing.T, err error) { assert.ErrorContains(t, err, "502") }},
		{"garbage", http.StatusOK, `{"jsonrpc"`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMalformedFrame) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := rpcServer(t, tt.status, tt.reply)
			c, err := NewClient(srv.URL)
			require.NoError(t, err)
			_, _, err = c.AccountData(context.Background(), address)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}
