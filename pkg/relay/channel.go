package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout  = 10 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	closeHandshakeTimeout    = 2 * time.Second
)

// MessageSender is the outbound surface a CallSession needs from its relay
// channel. RelayChannel implements it; tests substitute fakes.
type MessageSender interface {
	// SendAudioBatch relays one audio event's chunks as a single message.
	SendAudioBatch(chunks []AudioChunk) error

	// SendVideoFrame relays one video frame as its own message, assigning
	// the next monotonic frame index.
	SendVideoFrame(frame VideoFrame) error

	// SendLifecycleEvent relays a started/ended event. Times are unix
	// seconds.
	SendLifecycleEvent(eventType string, startTime int64, endTime *int64) error

	// Connected reports whether the channel is currently connected.
	Connected() bool

	// Close disposes the channel. Idempotent.
	Close() error
}

// RelayChannelOptions configures a RelayChannel.
type RelayChannelOptions struct {
	// ServerURL is the ws:// or wss:// endpoint of the external consumer.
	ServerURL string

	// JWTSecret signs the bearer credential presented at connect time.
	JWTSecret string

	// CompanyID is the tenant claim carried in the credential.
	CompanyID string

	// Session is announced once, immediately after connecting, before any
	// media is relayed.
	Session SessionInfo

	// OnClosed is invoked exactly once per connection when the transport
	// closes, whether by a close frame, a read error, or a write error.
	// It is not invoked for an explicit Close.
	OnClosed func()

	// HandshakeTimeout bounds the websocket dial. Defaults to 10s.
	HandshakeTimeout time.Duration

	// KeepAliveInterval is the ping cadence on the established connection.
	// Defaults to 30s.
	KeepAliveInterval time.Duration

	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// RelayChannel is the persistent authenticated duplex connection carrying
// session, audio, video, and lifecycle messages to the external consumer.
// One call owns one channel instance; there is no automatic reconnect.
// The lifecycle layer may call Connect again after a disconnect if it
// chooses to.
//
// All sends on a channel are serialized by a write mutex so concurrent
// callers cannot interleave partial frames. Sends while disconnected no-op
// with a warning; dropped media during a disconnected window is accepted
// data loss, never queued for retry.
type RelayChannel struct {
	opts   RelayChannelOptions
	logger *zap.Logger

	mu      sync.Mutex // guards conn and cancel
	writeMu sync.Mutex // serializes websocket writes
	conn    *websocket.Conn
	cancel  context.CancelFunc

	state      atomic.Int32
	frameIndex atomic.Int64

	closedNotice eventGuard
	disposed     eventGuard
}

// NewRelayChannel creates a channel for one call. Connect must be called
// before any send.
func NewRelayChannel(opts RelayChannelOptions) *RelayChannel {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.KeepAliveInterval == 0 {
		opts.KeepAliveInterval = defaultKeepAliveInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RelayChannel{
		opts:   opts,
		logger: logger,
	}
}

// State returns the current connection state.
func (c *RelayChannel) State() ChannelState {
	return ChannelState(c.state.Load())
}

// Connected reports whether the channel is currently connected.
func (c *RelayChannel) Connected() bool {
	return c.State() == ChannelConnected
}

// Connect establishes the transport, presents the bearer credential, sends
// the session-announce message, and starts the inbound drain loop. It fails
// if the channel is disposed or a connection is already in flight.
func (c *RelayChannel) Connect(ctx context.Context) error {
	if c.disposed.Fired() {
		return ErrChannelDisposed
	}
	if !c.state.CompareAndSwap(int32(ChannelDisconnected), int32(ChannelConnecting)) {
		return ErrAlreadyConnected
	}

	token, err := signBearerToken(c.opts.JWTSecret, c.opts.CompanyID, time.Now())
	if err != nil {
		c.state.Store(int32(ChannelDisconnected))
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.DialContext(ctx, c.opts.ServerURL, header)
	if err != nil {
		c.state.Store(int32(ChannelDisconnected))
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.logger.Error("relay channel connect failed",
			zap.String("url", c.opts.ServerURL),
			zap.Int("status", status),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	c.closedNotice.reset()
	c.state.Store(int32(ChannelConnected))
	c.logger.Info("relay channel connected", zap.String("url", c.opts.ServerURL))

	// The announce must precede any media on the wire. A failed announce
	// already flipped the state back to disconnected via the write path.
	if err := c.writeFrame(newSessionAnnounceMessage(c.opts.Session)); err != nil {
		c.logger.Error("failed to send session announce",
			zap.String("sessionID", c.opts.Session.SessionID),
			zap.Error(err),
		)
	}

	go c.drainLoop(drainCtx, conn)
	return nil
}

// SendAudioBatch relays one audio event's chunks as a single message. While
// disconnected it drops the batch with a warning instead of erroring.
func (c *RelayChannel) SendAudioBatch(chunks []AudioChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if !c.Connected() {
		c.logger.Warn("cannot send audio batch, relay channel is not connected",
			zap.Int("chunks", len(chunks)))
		return nil
	}
	return c.writeFrame(newAudioMessage(chunks))
}

// SendVideoFrame relays one video frame, stamping it with the next frame
// index. Frames arriving while disconnected are dropped with a warning.
func (c *RelayChannel) SendVideoFrame(frame VideoFrame) error {
	if !c.Connected() {
		c.logger.Warn("cannot send video frame, relay channel is not connected")
		return nil
	}
	frame.FrameIndex = c.frameIndex.Add(1) - 1
	return c.writeFrame(newVideoMessage(frame))
}

// SendLifecycleEvent relays a started/ended event with unix-second times.
func (c *RelayChannel) SendLifecycleEvent(eventType string, startTime int64, endTime *int64) error {
	if !c.Connected() {
		c.logger.Warn("cannot send lifecycle event, relay channel is not connected",
			zap.String("event", eventType))
		return nil
	}
	return c.writeFrame(newLifecycleMessage(eventType, startTime, endTime))
}

// writeFrame serializes a message and writes it as one text frame. A write
// fault flips the channel to disconnected and raises the closed
// notification.
func (c *RelayChannel) writeFrame(msg any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Error("relay channel write failed", zap.Error(err))
		c.markDisconnected()
		return fmt.Errorf("write relay frame: %w", err)
	}
	return nil
}

// drainLoop discards server-to-client frames and keeps the connection
// alive. On a close frame or transport error it flips the state and raises
// the closed notification exactly once.
func (c *RelayChannel) drainLoop(ctx context.Context, conn *websocket.Conn) {
	keepAlive := time.NewTicker(c.opts.KeepAliveInterval)
	defer keepAlive.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				c.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(closeHandshakeTimeout))
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.disposed.Fired() {
				// Explicit disposal; not a remote close.
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("relay channel closed by server")
			} else {
				c.logger.Error("relay channel read failed", zap.Error(err))
			}
			c.markDisconnected()
			return
		}

		// Inbound frames carry no protocol meaning today; drain and drop.
		c.logger.Debug("discarding inbound relay frame",
			zap.Int("messageType", msgType),
			zap.Int("length", len(data)),
		)
	}
}

// markDisconnected flips the state and fires the closed notification once
// per connection.
func (c *RelayChannel) markDisconnected() {
	c.state.Store(int32(ChannelDisconnected))
	if c.disposed.Fired() {
		return
	}
	if c.closedNotice.TryFire() {
		c.logger.Warn("relay channel connection closed")
		if c.opts.OnClosed != nil {
			c.opts.OnClosed()
		}
	}
}

// Close disposes the channel: cancels the drain loop, attempts a graceful
// close handshake if still connected, and releases the transport. Safe to
// call multiple times; terminal.
func (c *RelayChannel) Close() error {
	if !c.disposed.TryFire() {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	wasConnected := c.state.Swap(int32(ChannelDisconnected)) == int32(ChannelConnected)
	if conn == nil {
		return nil
	}

	if wasConnected {
		c.writeMu.Lock()
		err := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing connection"),
			time.Now().Add(closeHandshakeTimeout),
		)
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Debug("close handshake failed", zap.Error(err))
		}
	}

	if err := conn.Close(); err != nil {
		c.logger.Debug("transport close failed", zap.Error(err))
	}
	c.logger.Info("relay channel disposed")
	return nil
}
