// Package rtc is the communication client: loading it builds a pion
// PeerConnection and gathers ICE candidates, and peer connection state is
// reported to subscribers as domain.ConnectionStatus.
package rtc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Lobby/internal/app/handoff"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Version of the client stack reported to the version check.
const Version = "4.1"

const subscriberBuffer = 16

var ErrClosed = errors.New("client closed")

type Config struct {
	ICEServers  []string
	LoadTimeout time.Duration
	// RetryDelay is what Retrying reports while the peer is disconnected.
	RetryDelay        time.Duration
	RequiredVersion   string
	PlugInDownloadURL string
	AppDownloadURL    string
	HandoffTTL        time.Duration
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func (c Config) webrtcConfig() webrtc.Configuration {
	if len(c.ICEServers) == 0 {
		return DefaultWebRTCConfig()
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.ICEServers}},
	}
}

type subscriber struct {
	ch   chan domain.ConnectionStatus
	quit chan struct{}
	once sync.Once
}

type Client struct {
	cfg   Config
	id    domain.ClientID
	store handoff.Store

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	pc     *webrtc.PeerConnection
	closed bool

	paramsMu sync.Mutex
	params   *domain.SessionParams
}

// NewClient does not touch the network; Load does.
func NewClient(cfg Config, id domain.ClientID, store handoff.Store) *Client {
	return &Client{
		cfg:   cfg,
		id:    id,
		store: store,
		subs:  make(map[int]*subscriber),
	}
}

func (c *Client) Subscribe() (<-chan domain.ConnectionStatus, func()) {
	s := &subscriber{
		ch:   make(chan domain.ConnectionStatus, subscriberBuffer),
		quit: make(chan struct{}),
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.closed {
		close(s.ch)
	} else {
		c.subs[id] = s
	}
	c.mu.Unlock()

	return s.ch, func() {
		s.once.Do(func() {
			close(s.quit)
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// emit delivers st to every subscriber in call order. A send blocks until the
// subscriber reads or unsubscribes.
func (c *Client) emit(st domain.ConnectionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	log.Debug().Str("module", "rtc").Str("client", string(c.id)).Str("status", string(st.Kind)).Msg("emit status")
	for _, s := range c.subs {
		select {
		case s.ch <- st:
		case <-s.quit:
		}
	}
}

// Load starts the client. The outcome is reported on the status stream: Ready
// once ICE gathering completes, TimedOut if it does not within LoadTimeout.
func (c *Client) Load(ctx context.Context) error {
	if !VersionCompatible(c.cfg.RequiredVersion, Version) {
		c.emit(domain.FailedVersion(
			"client version "+Version+" is not compatible with required "+c.cfg.RequiredVersion,
			c.cfg.PlugInDownloadURL,
			c.cfg.AppDownloadURL,
		))
		return nil
	}

	pc, err := webrtc.NewPeerConnection(c.cfg.webrtcConfig())
	if err != nil {
		c.emit(domain.Failed(err.Error()))
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = pc.Close()
		return ErrClosed
	}
	c.pc = pc
	c.mu.Unlock()

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("client", string(c.id)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if st, ok := StatusForPeerState(s, c.cfg.RetryDelay); ok {
			c.emit(st)
		}
	})

	if _, err := pc.CreateDataChannel("lobby", nil); err != nil {
		c.emit(domain.Failed(err.Error()))
		return nil
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.emit(domain.Failed(err.Error()))
		return nil
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		c.emit(domain.Failed(err.Error()))
		return nil
	}

	timeout := c.cfg.LoadTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	go func() {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-gatherComplete:
			c.emit(domain.Ready())
		case <-t.C:
			c.emit(domain.TimedOut("ICE gathering did not complete in " + timeout.String()))
		case <-ctx.Done():
		}
	}()
	return nil
}

// StatusForPeerState maps pion's peer connection state onto a status. States
// with nothing to report return false.
func StatusForPeerState(s webrtc.PeerConnectionState, retryDelay time.Duration) (domain.ConnectionStatus, bool) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		return domain.Ready(), true
	case webrtc.PeerConnectionStateDisconnected:
		return domain.Retrying("peer connection interrupted", retryDelay.Milliseconds()), true
	case webrtc.PeerConnectionStateFailed:
		return domain.Failed("peer connection failed"), true
	case webrtc.PeerConnectionStateClosed:
		return domain.NotAvailable("peer connection closed"), true
	default:
		return domain.ConnectionStatus{}, false
	}
}

// VersionCompatible reports whether have satisfies required on the major
// version. An empty requirement accepts anything.
func VersionCompatible(required, have string) bool {
	required = strings.TrimPrefix(strings.TrimSpace(required), "v")
	if required == "" {
		return true
	}
	major := func(v string) string {
		v, _, _ = strings.Cut(strings.TrimPrefix(v, "v"), ".")
		return v
	}
	return major(required) == major(have)
}

func (c *Client) SetSessionParameters(ctx context.Context, p domain.SessionParams) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.paramsMu.Lock()
	c.params = &p
	c.paramsMu.Unlock()

	if c.store != nil {
		if err := c.store.Save(ctx, c.id, p, c.cfg.HandoffTTL); err != nil {
			return err
		}
	}
	log.Info().Str("module", "rtc").Str("client", string(c.id)).Str("room", p.MeetingRoom).Str("host", p.HostName).Msg("session parameters set")
	return nil
}

// Session returns the parameters of the last handoff.
func (c *Client) Session() (domain.SessionParams, bool) {
	c.paramsMu.Lock()
	defer c.paramsMu.Unlock()
	if c.params == nil {
		return domain.SessionParams{}, false
	}
	return *c.params, true
}

// Close tears down the peer connection and ends every subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pc := c.pc
	for id, s := range c.subs {
		close(s.ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("client", string(c.id)).Msg("close error")
		return err
	}
	log.Info().Str("module", "rtc").Str("client", string(c.id)).Msg("closed")
	return nil
}
