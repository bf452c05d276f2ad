package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"serumdepth/internal/book"
	"serumdepth/internal/chain"
	"serumdepth/internal/common"
	"serumdepth/internal/common/syncio"
	"serumdepth/internal/feed"
	"serumdepth/internal/mainutil"
	"serumdepth/internal/market"
	"serumdepth/internal/metrics"
	"serumdepth/internal/session"
)

var Options struct {
	Market       string
	RPC          string
	WS           string
	BidQty       string
	AskQty       string
	Encoding     string        `traits:"oneof=base64|base64+zstd|base58|jsonParsed"`
	Count        int           `traits:"ge=0"`
	Books        int           `traits:"ge=0"`
	Metrics      string
	Config       string
	LogLevel     string
	AckTimeout   time.Duration `traits:"gt=0"`
	StallTimeout time.Duration `traits:"ge=0"`
	Reconnect    bool
	Help         bool
}

var flags flag.FlagSet

func init() {
	flags.StringVarP(&Options.Market, "market", "m", "", "market address")
	flags.StringVarP(&Options.RPC, "rpc", "", "https://api.mainnet-beta.solana.com", "JSON-RPC endpoint")
	flags.StringVarP(&Options.WS, "ws", "", "", "pubsub endpoint (default derived from --rpc)")
	flags.StringVarP(&Options.BidQty, "bid-qty", "b", "1", "base quantity to sell into the bids")
	flags.StringVarP(&Options.AskQty, "ask-qty", "a", "1", "base quantity to buy from the asks")
	flags.StringVarP(&Options.Encoding, "encoding", "e", string(feed.EncodingBase64), "account encoding: "+strings.Join(feed.Encodings, ", "))
	flags.IntVarP(&Options.Count, "count", "n", 0, "stop after this many updates (0 runs until interrupted)")
	flags.IntVarP(&Options.Books, "books", "", 0, "print this many aggregated levels per update")
	flags.StringVarP(&Options.Metrics, "metrics", "", "", "serve prometheus metrics on this address")
	flags.StringVarP(&Options.Config, "config", "c", "", "yaml config file")
	flags.StringVarP(&Options.LogLevel, "log-level", "", "info", "log level")
	flags.DurationVarP(&Options.AckTimeout, "ack-timeout", "", feed.DefaultAckTimeout, "subscription acknowledgment timeout")
	flags.DurationVarP(&Options.StallTimeout, "stall-timeout", "", session.DefaultStallTimeout, "fail when no frame arrives for this long (0 disables)")
	flags.BoolVarP(&Options.Reconnect, "reconnect", "", false, "open a new session when the current one is lost")
	flags.BoolVarP(&Options.Help, "help", "", false, "this help message")
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)
}

var errDone = errors.New("done")

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
		stdout.Print("Usage: depth [flags] [market]\n\n" + flags.FlagUsages())
		return nil, 1
	}
	if Options.Config != "" {
		fc, err := loadConfig(Options.Config)
		if err != nil {
			return err, 1
		}
		applyConfig(fc, &flags)
	}
	if len(args) > 0 && !flags.Changed("market") {
		Options.Market = args[0]
	}
	if err := mainutil.Validate(Options); err != nil {
		stderr.Print(err)
		return nil, 1
	}

	address, err := mainutil.ParseAddress("Market", Options.Market)
	if err != nil {
		stderr.Print(err)
		return nil, 1
	}
	bidQty, err := mainutil.ParseQuantity("BidQty", Options.BidQty)
	if err != nil {
		stderr.Print(err)
		return nil, 1
	}
	askQty, err := mainutil.ParseQuantity("AskQty", Options.AskQty)
	if err != nil {
		stderr.Print(err)
		return nil, 1
	}
	if Options.WS == "" {
		Options.WS = wsURL(Options.RPC)
	}
	logger, err := newLogger(Options.LogLevel)
	if err != nil {
		return err, 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	cfg := session.Config{
		Bids:        m.BookAddress(book.Bid),
		Asks:        m.BookAddress(book.Ask),
		BidQuantity: bidQty,
		AskQuantity: askQty,
		Codec:       m.Codec(),
	}
	sessOpts := []common.Option{
		common.OptionLogger(logger),
		session.OptionEncoding(feed.Encoding(Options.Encoding)),
		session.OptionAckTimeout(Options.AckTimeout),
		session.OptionStallTimeout(Options.StallTimeout),
	}
	if Options.Metrics != "" {
		obs := metrics.NewObserver(address.String())
		srv := metrics.Serve(Options.Metrics, metrics.Registry(logger, obs.Collectors()...), logger)
		defer srv.Close()
		sessOpts = append(sessOpts, session.OptionObserver(obs))
	}

	p := newPrinter(syncio.NewStringWriter(os.Stdout), address.String(), Options.Books, Options.Count)
	defer p.finish()

	if err := follow(ctx, cfg, p, logger, sessOpts); err != nil {
		return err, 2
	}
	return nil, 0
}

// follow streams updates to p until ctx is done or p has seen enough,
// opening a new session after a loss when reconnecting.
func follow(ctx context.Context, cfg session.Config, p *printer, logger zerolog.Logger, opts []common.Option) error {
	const maxBackoff = 30 * time.Second
	backoff := time.Second
	for {
		seen := p.seen
		err := stream(ctx, cfg, p, logger, opts)
		switch {
		case errors.Is(err, errDone), ctx.Err() != nil:
			return nil
		case !Options.Reconnect, errors.Is(err, session.ErrInvalidConfig):
			return err
		}
		if p.seen > seen {
			backoff = time.Second
		}
		logger.Warn().Err(err).Dur("backoff", backoff).Msg("session ended, reconnecting")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func stream(ctx context.Context, cfg session.Config, p *printer, logger zerolog.Logger, opts []common.Option) error {
	conn, err := chain.Dial(ctx, Options.WS, common.OptionLogger(logger))
	if err != nil {
		return err
	}
	s, err := session.Open(ctx, conn, cfg, opts...)
	if err != nil {
		conn.Close()
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn().Err(err).Msg("session close")
		}
	}()
	return s.Serve(ctx, p.handler(s))
}

func wsURL(rpc string) string {
	switch {
	case strings.HasPrefix(rpc, "https://"):
		return "wss://" + strings.TrimPrefix(rpc, "https://")
	case strings.HasPrefix(rpc, "http://"):
		return "ws://" + strings.TrimPrefix(rpc, "http://")
	}
	return rpc
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
