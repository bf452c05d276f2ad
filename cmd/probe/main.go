package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"serumdepth/internal/book"
	"serumdepth/internal/chain"
	"serumdepth/internal/common"
	"serumdepth/internal/mainutil"
	"serumdepth/internal/market"
)

var Options struct {
	RPC     string
	L2      int           `traits:"ge=0"`
	Timeout time.Duration `traits:"gt=0"`
	Verbose bool
	Help    bool
}

var flags flag.FlagSet

func init() {
	flags.StringVarP(&Options.RPC, "rpc", "", "https://api.mainnet-beta.solana.com", "JSON-RPC endpoint")
	flags.IntVarP(&Options.L2, "l2", "", 0, "print this many aggregated levels instead of orders")
	flags.DurationVarP(&Options.Timeout, "timeout", "", 30*time.Second, "request timeout")
	flags.BoolVarP(&Options.Verbose, "verbose", "v", false, "log requests")
	flags.BoolVarP(&Options.Help, "help", "", false, "this help message")
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)
}

var (
	stdout = log.New(os.Stdout, "", 0)
	stderr = log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
)

func run() (err error, ret int) {
	args, err := mainutil.ParseArgs(&flags)
	if err != nil {
		if err == flag.ErrHelp {
			Options.Help = true
		} else {
			return err, 1
		}
	}
	if Options.Help {
		stdout.Print("Usage: probe [flags] market\n\n" + flags.FlagUsages())
		return nil, 1
	}
	if err := mainutil.Validate(Options); err != nil {
		stderr.Print(err)
		return nil, 1
	}
	if len(args) == 0 {
		stderr.Print("Market?")
		return nil, 1
	}
	address, err := mainutil.ParseAddress("Market", args[0])
	if err != nil {
		stderr.Print(err)
		return nil, 1
	}

	logger := zerolog.Nop()
	if Options.Verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	ctx, cancel := context.WithTimeout(context.Background(), Options.Timeout)
	defer cancel()

	client, err := chain.NewClient(Options.RPC, common.OptionLogger(logger))
	if err != nil {
		return err, 1
	}
	resolver, err := market.NewResolver(client, common.OptionLogger(logger))
	if err != nil {
		return err, 1
	}
	m, err := resolver.Resolve(ctx, address)
	if err != nil {
		return err, 2
	}

	codec := m.Codec()
	var snaps [2]book.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	for i, side := range []book.Side{book.Bid, book.Ask} {
		i, side := i, side
		g.Go(func() error {
			data, _, err := client.AccountData(gctx, m.BookAddress(side))
			if err != nil {
				return err
			}
			snaps[i], err = codec.Decode(data, side)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err, 2
	}

	var b strings.Builder
	for _, snap := range snaps {
		printBook(&b, snap, Options.L2)
	}
	stdout.Print(b.String())
	return nil, 0
}

func printBook(b *strings.Builder, snap book.Snapshot, l2 int) {
	side := strings.ToUpper(snap.Side.String())
	if l2 > 0 {
		for _, l := range snap.L2(l2) {
			fmt.Fprintf(b, "%s | price: %s, size: %s, orders: %d\n", side, l.Price, l.Size, l.Orders)
		}
		return
	}
	for _, pl := range snap.Levels {
		fmt.Fprintf(b, "%s | Order id: %s, price: %s, size: %s\n", side, pl.OrderID, pl.Price, pl.Size)
	}
}

func main() {
	err, ret := run()
	if err != nil {
		stderr.Println("Error:", err)
	}
	if ret != 0 {
		os.Exit(ret)
	}
}
