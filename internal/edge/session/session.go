// Package session is the Edge Session Client: the ECA's long-running connection to the CCP's
// PeerMessagingBroker. It dispatches received DownstreamMessages to the Edge Reconciler,
// answers Ping/Pong liveness, and reconnects with back-off on recoverable transport errors,
// classifying every gRPC status three ways: ignore, back off and retry, or fatal.
package session

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/eclipse-opendut/opendut-go/internal/rpc"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
	"github.com/eclipse-opendut/opendut-go/pkg/wire"
)

// DisconnectTimeout bounds how long the client waits for any message (including a Pong
// keepalive) before treating the connection as dead.
const DisconnectTimeout = 30 * time.Second

// ErrDisconnectNotice is returned by Run when the CCP sends a DisconnectNotice. This is
// fatal: the caller must terminate the agent process and rely on an external supervisor to
// restart it, rather than reconnect with back-off.
var ErrDisconnectNotice = errors.New("edge session: received disconnect notice from ccp")

// Handler is supplied by the caller (cmd/ecad) to react to downstream frames; it is the
// Edge Reconciler's entry point from the client's point of view.
type Handler interface {
	ApplyPeerConfiguration(ctx context.Context, payload wire.ApplyPeerConfigurationPayload, trace wire.TracingContext)
	ReportState() (wire.UpstreamMessage, bool)
}

// Client owns one reconnecting session against the CCP.
type Client struct {
	self    ids.PeerId
	conn    *grpc.ClientConn
	handler Handler

	backoff backoffPolicy
}

func NewClient(self ids.PeerId, conn *grpc.ClientConn, handler Handler) *Client {
	return &Client{self: self, conn: conn, handler: handler, backoff: newBackoffPolicy()}
}

// Run blocks, maintaining a session until ctx is done. Every recoverable disconnect is
// retried with exponential back-off; fatal gRPC statuses return an error immediately so the
// caller (typically a process supervisor) can restart the whole agent, mirroring the
// original's deliberate panic-and-let-systemd-restart behaviour.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.runOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrDisconnectNotice) {
			log.Warnf("edge session: ccp sent a disconnect notice, terminating")
			return err
		}
		if isFatal(err) {
			return err
		}
		delay := c.backoff.next()
		log.Warnf("edge session: disconnected (%v), retrying in %s", err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	client := rpc.NewPeerMessagingClient(c.conn)
	stream, err := client.Open(ctx)
	if err != nil {
		return err
	}
	c.backoff.reset()

	errc := make(chan error, 1)
	go c.sendLoop(stream, errc)
	return c.recvLoop(ctx, stream, errc)
}

func (c *Client) sendLoop(stream grpc.ClientStream, errc chan<- error) {
	for {
		msg, ok := c.handler.ReportState()
		if !ok {
			return
		}
		if err := stream.SendMsg(&msg); err != nil {
			errc <- err
			return
		}
	}
}

func (c *Client) recvLoop(ctx context.Context, stream grpc.ClientStream, sendErrc <-chan error) error {
	for {
		recvc := make(chan error, 1)
		var msg wire.DownstreamMessage
		go func() { recvc <- stream.RecvMsg(&msg) }()

		select {
		case err := <-sendErrc:
			return err
		case err := <-recvc:
			if err != nil {
				return err
			}
		case <-time.After(DisconnectTimeout):
			return status.Error(codes.DeadlineExceeded, "no message from CCP within disconnect timeout")
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := c.handle(ctx, stream, msg); err != nil {
			return err
		}
	}
}

func (c *Client) handle(ctx context.Context, stream grpc.ClientStream, msg wire.DownstreamMessage) error {
	switch msg.Kind {
	case wire.DownPong:
		return stream.SendMsg(&wire.UpstreamMessage{Kind: wire.UpPing})
	case wire.DownApplyPeerConfiguration:
		c.handler.ApplyPeerConfiguration(ctx, *msg.ApplyPeerConfiguration, msg.Context)
		return nil
	case wire.DownDisconnectNotice:
		return ErrDisconnectNotice
	default:
		log.Warnf("edge session: unknown downstream message kind %q", msg.Kind)
		return nil
	}
}

// isFatal classifies a gRPC status the way peer_messaging_client.rs does: Ok/AlreadyExists are
// unreachable here (recv already succeeded), DeadlineExceeded/Unavailable are recoverable and
// retried with back-off, and every other code is treated as a bug worth surfacing loudly
// rather than retried forever.
func isFatal(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.DeadlineExceeded, codes.Unavailable, codes.OK, codes.AlreadyExists:
		return false
	default:
		return true
	}
}

type backoffPolicy struct {
	attempt int
}

func newBackoffPolicy() backoffPolicy { return backoffPolicy{} }

func (b *backoffPolicy) reset() { b.attempt = 0 }

func (b *backoffPolicy) next() time.Duration {
	b.attempt++
	delay := time.Second * time.Duration(1<<uint(min(b.attempt, 6)))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
