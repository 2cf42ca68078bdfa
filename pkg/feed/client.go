package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/receipts"
)

// Client errors.
var (
	ErrClientClosed = errors.New("feed client closed")
	ErrStreamClosed = errors.New("feed stream closed")
	ErrNotConnected = errors.New("feed client not connected")
)

// ClientConfig configures a feed client.
type ClientConfig struct {
	// Endpoint is the host:port of the feed server.
	Endpoint string

	// Mint filters the stream to one sale; nil means all.
	Mint *types.Pubkey

	// FromSeq replays the log from this sequence; zero means live only.
	FromSeq uint64

	// ChannelSize is the receipt channel buffer (default 256).
	ChannelSize int

	// KeepaliveTime between transport pings (default 30s).
	KeepaliveTime time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.ChannelSize == 0 {
		c.ChannelSize = DefaultSubscriberBuffer
	}
	if c.KeepaliveTime == 0 {
		c.KeepaliveTime = 30 * time.Second
	}
	return c
}

// Client subscribes to a feed server and delivers receipts on a channel.
type Client struct {
	config ClientConfig

	conn   *grpc.ClientConn
	out    chan *receipts.Receipt
	closed atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lastSeq atomic.Uint64
}

// NewClient creates an unconnected feed client.
func NewClient(config ClientConfig) *Client {
	config = config.withDefaults()
	return &Client{
		config: config,
		out:    make(chan *receipts.Receipt, config.ChannelSize),
	}
}

// Connect dials the server, sends the subscription, and starts the receive
// loop. Receipts arrive on Receipts() until Close or a stream error.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	conn, err := grpc.Dial(c.config.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.config.KeepaliveTime,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("dial feed server: %w", err)
	}
	c.conn = conn

	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Subscribe",
		ServerStreams: true,
	}, "/"+ServiceName+"/Subscribe")
	if err != nil {
		conn.Close()
		cancel()
		return fmt.Errorf("open feed stream: %w", err)
	}

	req := &subscribeRequest{FromSeq: c.config.FromSeq}
	if c.config.Mint != nil {
		req.Mint = c.config.Mint.String()
	}
	if err := stream.SendMsg(req); err != nil {
		conn.Close()
		cancel()
		return fmt.Errorf("send subscription: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		conn.Close()
		cancel()
		return fmt.Errorf("close send side: %w", err)
	}

	c.wg.Add(1)
	go c.receiveLoop(ctx, stream)
	return nil
}

func (c *Client) receiveLoop(ctx context.Context, stream grpc.ClientStream) {
	defer c.wg.Done()
	defer close(c.out)

	for {
		update := &receiptUpdate{}
		if err := stream.RecvMsg(update); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return
			}
			return
		}

		r, err := receiptFromUpdate(update)
		if err != nil {
			continue
		}
		c.lastSeq.Store(r.Seq)

		select {
		case c.out <- r:
		case <-ctx.Done():
			return
		}
	}
}

// Receipts returns the receipt channel. It closes when the stream ends.
func (c *Client) Receipts() <-chan *receipts.Receipt {
	return c.out
}

// LastSeq returns the newest sequence received, for resuming with FromSeq.
func (c *Client) LastSeq() uint64 {
	return c.lastSeq.Load()
}

// Close tears down the stream and connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return ErrClientClosed
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
