package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrStreamFailed wraps an error message sent by the server.
var ErrStreamFailed = errors.New("stream failed")

// StreamClientConfig configures StreamClient behavior.
type StreamClientConfig struct {
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// ReadTimeout is timeout for reading one message.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream client configuration.
func DefaultStreamConfig() StreamClientConfig {
	return StreamClientConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// StreamClient runs backtests over the /api/v1/stream websocket.
// Each Run uses its own connection.
type StreamClient struct {
	endpoint string
	config   StreamClientConfig
}

// NewStreamClient creates a client for endpoint, a ws:// or wss:// URL of
// the stream route.
func NewStreamClient(endpoint string, config *StreamClientConfig) *StreamClient {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	return &StreamClient{endpoint: endpoint, config: cfg}
}

// Run sends req and calls onRow for every streamed ledger row, in bar
// order. It returns the final summary message. An onRow error closes the
// connection, which cancels the run on the server.
func (c *StreamClient) Run(ctx context.Context, req StreamRequest, onRow func(RowView) error) (*StreamMessage, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	// Closing the connection unblocks the read loop on cancellation.
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { conn.Close() }) }
	defer closeConn()
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}

		switch msg.Type {
		case MsgBar:
			if msg.Row == nil || onRow == nil {
				continue
			}
			if err := onRow(*msg.Row); err != nil {
				return nil, err
			}
		case MsgSummary:
			return &msg, nil
		case MsgError:
			return nil, fmt.Errorf("%w: %s", ErrStreamFailed, msg.Error)
		}
	}
}
