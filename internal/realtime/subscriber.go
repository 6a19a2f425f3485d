package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const defaultReconnectDelay = 5 * time.Second

// Subscriber connects to the server's event stream and calls a handler for
// every posts_changed event.
type Subscriber struct {
	url            string
	handler        func(Event)
	logger         *slog.Logger
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
}

// NewSubscriber creates a Subscriber for the events endpoint of the server
// at serverURL. http(s) URLs are converted to ws(s).
func NewSubscriber(serverURL string, handler func(Event), logger *slog.Logger) (*Subscriber, error) {
	wsURL, err := EventsURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		url:            wsURL,
		handler:        handler,
		logger:         logger,
		dialer:         &websocket.Dialer{HandshakeTimeout: 45 * time.Second},
		reconnectDelay: defaultReconnectDelay,
	}, nil
}

// EventsURL returns the websocket URL of the /api/events endpoint.
func EventsURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/api/events"
	return u.String(), nil
}

// Start connects to the event stream and processes events until the context
// is cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("event stream connection error, reconnecting", "error", err, "delay", s.reconnectDelay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.reconnectDelay):
					// backoff before reconnecting
				}
			}
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	s.logger.Debug("connecting to event stream", "url", s.url)

	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial event stream: %w (status: %s)", err, resp.Status)
		}
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not observe ctx, so closing the connection is what
	// unblocks it on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	s.logger.Info("connected to event stream")

	var received int64
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("event stream closed by server after %d events", received)
			}
			return fmt.Errorf("read message: %w", err)
		}

		ev, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}
		received++

		if ev.Kind == KindPostsChanged {
			s.handler(*ev)
		}
	}
}
