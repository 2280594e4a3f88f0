//go:build hostbridge

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"shiplink/internal/adapter/transport/bridgepb"
)

// BridgeCompiled reports whether the host bridge substrate is built in.
const BridgeCompiled = true

// closeGrace is how long a locally closed stream may drain before it is cancelled.
const closeGrace = time.Second

// BridgeDialer opens Exchange streams to the host process over gRPC.
// The underlying client connection is shared across dials.
type BridgeDialer struct {
	addr   string
	cc     *grpc.ClientConn
	client bridgepb.HostBridgeClient
	logger *slog.Logger
}

// NewBridgeDialer creates a dialer for the host bridge at addr
// (for example "unix:///run/shiplink/host.sock" or "127.0.0.1:7777").
func NewBridgeDialer(addr string, logger *slog.Logger) (Dialer, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc connect %s: %w", addr, err)
	}
	return newBridgeDialer(addr, cc, logger), nil
}

func newBridgeDialer(addr string, cc *grpc.ClientConn, logger *slog.Logger) *BridgeDialer {
	return &BridgeDialer{
		addr:   addr,
		cc:     cc,
		client: bridgepb.NewHostBridgeClient(cc),
		logger: logger,
	}
}

func (d *BridgeDialer) Name() string { return "hostbridge" }

// Close releases the shared client connection.
func (d *BridgeDialer) Close() error { return d.cc.Close() }

// Dial opens an Exchange stream and a WatchHost stream. The handshake query
// is sent as gRPC metadata.
func (d *BridgeDialer) Dial(ctx context.Context, target Target) (Conn, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, bridgepb.QueryMetadataKey, target.Query.Encode())

	// The dial ctx only bounds stream setup; the streams outlive it.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	ex, err := d.client.Exchange(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bridge exchange %s: %w", d.addr, err)
	}
	watch, err := d.client.WatchHost(streamCtx, &bridgepb.WatchRequest{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bridge watch %s: %w", d.addr, err)
	}

	c := &bridgeConn{
		ex:      ex,
		cancel:  cancel,
		closing: make(chan struct{}),
		logger:  d.logger,
	}
	go c.watchHost(watch)
	return c, nil
}

type bridgeConn struct {
	ex        bridgepb.HostBridge_ExchangeClient
	sendMu    sync.Mutex
	cancel    context.CancelFunc
	closing   chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func (c *bridgeConn) Send(_ context.Context, frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ex.Send(&bridgepb.Frame{Data: frame}); err != nil {
		return bridgeCloseError(err)
	}
	return nil
}

// Recv reads the next frame. The stream context, not ctx, bounds the wait.
// A terminal error cancels both streams, so a host-initiated close releases
// the WatchHost stream without a local Close.
func (c *bridgeConn) Recv(_ context.Context) ([]byte, error) {
	f, err := c.ex.Recv()
	if err != nil {
		c.cancel()
		return nil, bridgeCloseError(err)
	}
	if f.Close != nil {
		c.cancel()
		return nil, &CloseError{Code: f.Close.Code, Reason: f.Close.Reason}
	}
	return f.Data, nil
}

func (c *bridgeConn) Close(code int, reason string) error {
	c.sendMu.Lock()
	err := c.ex.Send(&bridgepb.Frame{Close: &bridgepb.CloseNotice{Code: code, Reason: reason}})
	if err == nil {
		err = c.ex.CloseSend()
	}
	c.sendMu.Unlock()
	time.AfterFunc(closeGrace, c.cancel)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("bridge close: %w", err)
	}
	return nil
}

func (c *bridgeConn) HostClosing() <-chan struct{} { return c.closing }

func (c *bridgeConn) watchHost(watch bridgepb.HostBridge_WatchHostClient) {
	for {
		ev, err := watch.Recv()
		if err != nil {
			return
		}
		if ev.Kind == bridgepb.HostEventClosing {
			c.logger.Info("host bridge announced shutdown")
			c.closeOnce.Do(func() { close(c.closing) })
		}
	}
}

func bridgeCloseError(err error) error {
	if errors.Is(err, io.EOF) {
		return &CloseError{Code: CloseNormal, Reason: "host ended stream"}
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unauthenticated:
			return &CloseError{Code: CloseSessionInvalid, Reason: s.Message()}
		case codes.Canceled:
			return &CloseError{Code: CloseGoingAway, Reason: s.Message()}
		}
		return &CloseError{Code: CloseAbnormal, Reason: s.Message()}
	}
	return &CloseError{Code: CloseAbnormal, Reason: err.Error()}
}
