package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
market: 9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT
rpc: https://rpc.example
ws: wss://ws.example
bid_qty: "5"
ask_qty: "2.5"
books: 10
stall_timeout: 30s
reconnect: true
`), 0o600))

	fc, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "2.5", fc.AskQty)
	assert.Equal(t, 30*time.Second, fc.Stall)

	saved := Options
	t.Cleanup(func() { Options = saved })
	require.NoError(t, flags.Parse([]string{"--rpc", "http://localhost:8899", "--books", "3"}))
	applyConfig(fc, &flags)

	assert.Equal(t, "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT", Options.Market)
	assert.Equal(t, "http://localhost:8899", Options.RPC)
	assert.Equal(t, "wss://ws.example", Options.WS)
	assert.Equal(t, "5", Options.BidQty)
	assert.Equal(t, 3, Options.Books)
	assert.Equal(t, 30*time.Second, Options.StallTimeout)
	assert.True(t, Options.Reconnect)
}

func TestConfigMissing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
