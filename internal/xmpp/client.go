package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/meszmate/conference/internal/logging"
	"github.com/meszmate/conference/internal/xmpp/packet"
	"github.com/meszmate/conference/internal/xmpp/stream"
	"github.com/meszmate/conference/internal/xmpp/tracker"
	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// ErrNotConnected is returned when writing without a session
var ErrNotConnected = errors.New("not connected")

// Client wraps the Mellium XMPP session and exposes it as the stanza
// stream the MUC layer works on.
type Client struct {
	session   *xmpp.Session
	jid       jid.JID
	password  string
	server    string
	port      int
	priority  int
	connected bool
	mu        sync.RWMutex

	bus     *stream.Bus
	tracker *tracker.Tracker

	onConnect    func()
	onDisconnect func(err error)
	onError      func(err error)

	ctx    context.Context
	cancel context.CancelFunc
}

// ClientConfig contains configuration for the XMPP client
type ClientConfig struct {
	JID      string
	Password string
	Server   string
	Port     int
	Resource string
	Priority int
	// IQTimeout bounds how long correlated requests wait for a response
	IQTimeout time.Duration
}

// NewClient creates a new XMPP client
func NewClient(cfg ClientConfig) (*Client, error) {
	j, err := jid.Parse(cfg.JID)
	if err != nil {
		return nil, fmt.Errorf("invalid JID: %w", err)
	}

	if cfg.Resource != "" {
		j, err = j.WithResource(cfg.Resource)
		if err != nil {
			return nil, fmt.Errorf("invalid resource: %w", err)
		}
	}

	if cfg.Port == 0 {
		cfg.Port = 5222
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		jid:      j,
		password: cfg.Password,
		server:   cfg.Server,
		port:     cfg.Port,
		priority: cfg.Priority,
		bus:      stream.NewBus(),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.tracker = tracker.New(c, cfg.IQTimeout)
	return c, nil
}

// Connect establishes a connection to the XMPP server and starts reading
// inbound stanzas.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	server := c.server
	if server == "" {
		server = c.jid.Domain().String()
	}

	addr := net.JoinHostPort(server, fmt.Sprint(c.port))

	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("failed to dial server: %w", err)
	}

	tlsConfig := &tls.Config{
		ServerName: c.jid.Domain().String(),
		MinVersion: tls.VersionTLS12,
	}

	negotiator := xmpp.NewNegotiator(func(_ *xmpp.Session, _ *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{
			Features: []xmpp.StreamFeature{
				xmpp.StartTLS(tlsConfig),
				xmpp.SASL("", c.password, sasl.ScramSha256Plus, sasl.ScramSha256, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
				xmpp.BindResource(),
			},
		}
	})

	session, err := xmpp.NewSession(
		c.ctx,
		c.jid.Domain(),
		c.jid,
		conn,
		0,
		negotiator,
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to negotiate session: %w", err)
	}

	c.session = session
	c.connected = true
	c.jid = session.LocalAddr()

	go c.serve(session)

	if err := session.Encode(c.ctx, stanza.Presence{}); err != nil {
		logging.Warn("failed to send initial presence: %v", err)
	}

	logging.Info("connected as %s", c.jid)

	if c.onConnect != nil {
		c.onConnect()
	}

	return nil
}

// Disconnect closes the XMPP connection. Pending requests fail with
// tracker.ErrClosed.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	if c.session != nil {
		_ = c.session.Encode(c.ctx, stanza.Presence{Type: stanza.UnavailablePresence})
		_ = c.session.Close()
	}
	c.cancel()

	c.connected = false
	c.session = nil
	c.tracker.Close()

	if c.onDisconnect != nil {
		c.onDisconnect(nil)
	}

	return nil
}

// serve reads stanzas until the session ends. Each stanza is fully handled
// before the next one is read.
func (c *Client) serve(session *xmpp.Session) {
	err := session.Serve(xmpp.HandlerFunc(func(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		c.handleElement(t, start)
		return nil
	}))
	c.handleDisconnect(err)
}

func (c *Client) handleElement(t xml.TokenReader, start *xml.StartElement) {
	s, err := packet.Decode(xml.NewTokenDecoder(t), start)
	if err != nil {
		logging.Debug("dropping undecodable %s: %v", start.Name.Local, err)
		if c.onError != nil {
			c.onError(err)
		}
		return
	}
	c.Dispatch(s)
}

// Dispatch routes an inbound stanza: responses to pending requests go to the
// tracker, everything else to the stream's subscribers.
func (c *Client) Dispatch(s *packet.Stanza) {
	if c.tracker.Deliver(s) {
		return
	}
	c.bus.Publish(s)
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.session = nil
	c.mu.Unlock()

	if !wasConnected {
		return
	}
	c.tracker.Close()
	if err != nil {
		logging.Error("session ended: %v", err)
	}
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

// Encode writes a stanza to the session
func (c *Client) Encode(ctx context.Context, v interface{}) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	session := c.session
	c.mu.RUnlock()

	return session.Encode(ctx, v)
}

// Subscribe registers a handler for inbound stanzas
func (c *Client) Subscribe(h stream.Handler) stream.Handle {
	return c.bus.Subscribe(h)
}

// Unsubscribe removes a handler registered with Subscribe
func (c *Client) Unsubscribe(h stream.Handle) {
	c.bus.Unsubscribe(h)
}

// Tracker returns the request correlator bound to this client
func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// JID returns the client's JID
func (c *Client) JID() jid.JID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jid
}

// SetConnectHandler sets the connect handler
func (c *Client) SetConnectHandler(handler func()) {
	c.onConnect = handler
}

// SetDisconnectHandler sets the disconnect handler
func (c *Client) SetDisconnectHandler(handler func(err error)) {
	c.onDisconnect = handler
}

// SetErrorHandler sets the error handler
func (c *Client) SetErrorHandler(handler func(err error)) {
	c.onError = handler
}
