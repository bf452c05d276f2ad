package chain

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"serumdepth/internal/common"
	"serumdepth/internal/common/timestamp"
	"serumdepth/internal/feed"
)

type Options struct {
	Logger       zerolog.Logger
	Commitment   string
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

func defaultOptions() Options {
	return Options{
		Logger:       zerolog.Nop(),
		Commitment:   DefaultCommitment,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadLimit:    16 * common.MiB,
	}
}

func OptionCommitment(commitment string) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "Commitment", commitment)
	}
}

func OptionWriteTimeout(d time.Duration) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "WriteTimeout", d)
	}
}

// OptionPingInterval sets the keepalive ping period, 0 disabling pings.
func OptionPingInterval(d time.Duration) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "PingInterval", d)
	}
}

// Conn is a JSON-RPC pubsub connection implementing feed.Transport.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	nextID  uint64
	writeMu sync.Mutex
	parser  fastjson.Parser

	frames  chan feed.Frame
	readErr error

	done      chan struct{}
	closeOnce sync.Once
}

var _ feed.Transport = (*Conn)(nil)

func Dial(ctx context.Context, url string, options ...common.Option) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	c, err := NewConn(ws, options...)
	if err != nil {
		ws.Close()
		return nil, err
	}
	return c, nil
}

// NewConn takes ownership of an established websocket.
func NewConn(ws *websocket.Conn, options ...common.Option) (*Conn, error) {
	opts := defaultOptions()
	if err := common.Apply(&opts, options...); err != nil {
		return nil, err
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}
	c := &Conn{
		ws:     ws,
		opts:   opts,
		frames: make(chan feed.Frame, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	if opts.PingInterval > 0 {
		go c.pingLoop()
	}
	return c, nil
}

// NewRequestID returns the next JSON-RPC request id of this connection.
func (c *Conn) NewRequestID() feed.RequestID {
	return feed.RequestID(atomic.AddUint64(&c.nextID, 1))
}

func (c *Conn) Subscribe(ctx context.Context, id feed.RequestID, address solana.PublicKey, encoding feed.Encoding) error {
	msg := fmt.Sprintf(
		`{"jsonrpc":"2.0","id":%d,"method":"accountSubscribe","params":["%s",{"encoding":"%s","commitment":"%s"}]}`,
		id, address, encoding, c.opts.Commitment)
	return c.send(ctx, msg)
}

func (c *Conn) Unsubscribe(ctx context.Context, id feed.RequestID, sub feed.SubscriptionID) error {
	msg := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"accountUnsubscribe","params":[%d]}`, id, sub)
	return c.send(ctx, msg)
}

func (c *Conn) Recv(ctx context.Context) (feed.Frame, error) {
	if c.closed() {
		return feed.Frame{}, ErrClosed
	}
	select {
	case f, ok := <-c.frames:
		if !ok {
			if c.closed() || c.readErr == nil {
				return feed.Frame{}, ErrClosed
			}
			return feed.Frame{}, c.readErr
		}
		return f, nil
	case <-c.done:
		return feed.Frame{}, ErrClosed
	case <-ctx.Done():
		return feed.Frame{}, ctx.Err()
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) send(ctx context.Context, msg string) error {
	if c.closed() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("chain: write: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.frames)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = fmt.Errorf("chain: read: %w", err)
			return
		}
		if len(msg) == 0 {
			continue
		}
		f, err := c.parse(msg, timestamp.Now())
		if err != nil {
			c.readErr = err
			return
		}
		if f == nil {
			continue
		}
		select {
		case c.frames <- *f:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			if err != nil {
				c.opts.Logger.Warn().Err(err).Msg("chain: ping")
			}
		case <-c.done:
			return
		}
	}
}

// parse returns nil for messages that are neither acks nor account notifications.
func (c *Conn) parse(msg []byte, received timestamp.Timestamp) (*feed.Frame, error) {
	v, err := c.parser.ParseBytes(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
	}
	if id := v.Get("id"); id != nil && id.Type() != fastjson.TypeNull {
		reqID, err := id.Uint64()
		if err != nil {
			return nil, fmt.Errorf("%w: id: %s", ErrMalformedFrame, err)
		}
		ack := &feed.Ack{RequestID: feed.RequestID(reqID)}
		if e := v.Get("error"); e != nil {
			ack.Err = rpcError(e)
			return &feed.Frame{Ack: ack}, nil
		}
		result := v.Get("result")
		if result == nil {
			return nil, fmt.Errorf("%w: ack %d without result", ErrMalformedFrame, reqID)
		}
		switch result.Type() {
		case fastjson.TypeNumber:
			sub, err := result.Uint64()
			if err != nil {
				return nil, fmt.Errorf("%w: result: %s", ErrMalformedFrame, err)
			}
			ack.Subscription, ack.OK = feed.SubscriptionID(sub), true
		case fastjson.TypeTrue:
			ack.OK = true
		case fastjson.TypeFalse:
		default:
			return nil, fmt.Errorf("%w: ack %d result of type %s", ErrMalformedFrame, reqID, result.Type())
		}
		return &feed.Frame{Ack: ack}, nil
	}

	switch method := string(v.GetStringBytes("method")); method {
	case "accountNotification":
		params := v.Get("params")
		value := params.Get("result", "value")
		if value == nil || params.Get("subscription") == nil {
			return nil, fmt.Errorf("%w: incomplete account notification", ErrMalformedFrame)
		}
		data, err := decodeData(value.Get("data"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
		}
		return &feed.Frame{Notification: &feed.Notification{
			Subscription: feed.SubscriptionID(params.GetUint64("subscription")),
			Slot:         params.GetUint64("result", "context", "slot"),
			Data:         data,
			Received:     received,
		}}, nil
	default:
		c.opts.Logger.Warn().Str("method", method).Int("len", len(msg)).Msg("chain: unexpected message")
		return nil, nil
	}
}
