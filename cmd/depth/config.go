package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the command line flags. Flags given on the command
// line win over the file.
type fileConfig struct {
	Market    string        `yaml:"market"`
	RPC       string        `yaml:"rpc"`
	WS        string        `yaml:"ws"`
	BidQty    string        `yaml:"bid_qty"`
	AskQty    string        `yaml:"ask_qty"`
	Encoding  string        `yaml:"encoding"`
	Books     int           `yaml:"books"`
	Metrics   string        `yaml:"metrics"`
	LogLevel  string        `yaml:"log_level"`
	Stall     time.Duration `yaml:"stall_timeout"`
	Reconnect bool          `yaml:"reconnect"`
}

func loadConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("%s: %w", path, err)
	}
	return fc, nil
}

// applyConfig copies the values set in fc to the flags not set on the
// command line.
func applyConfig(fc fileConfig, flags *flag.FlagSet) {
	str := func(name, v string, dst *string) {
		if v != "" && !flags.Changed(name) {
			*dst = v
		}
	}
	str("market", fc.Market, &Options.Market)
	str("rpc", fc.RPC, &Options.RPC)
	str("ws", fc.WS, &Options.WS)
	str("bid-qty", fc.BidQty, &Options.BidQty)
	str("ask-qty", fc.AskQty, &Options.AskQty)
	str("encoding", fc.Encoding, &Options.Encoding)
	str("metrics", fc.Metrics, &Options.Metrics)
	str("log-level", fc.LogLevel, &Options.LogLevel)
	if fc.Books != 0 && !flags.Changed("books") {
		Options.Books = fc.Books
	}
	if fc.Stall != 0 && !flags.Changed("stall-timeout") {
		Options.StallTimeout = fc.Stall
	}
	if fc.Reconnect && !flags.Changed("reconnect") {
		Options.Reconnect = true
	}
}
