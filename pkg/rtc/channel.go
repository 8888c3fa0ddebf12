// Package rtc streams JPEG frames to browsers over WebRTC data channels.
// Viewers send an SDP offer carrying a data channel labelled with the frame
// kind; the answer is returned once ICE gathering completes.
package rtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// Config holds WebRTC configuration.
type Config struct {
	Enabled bool `json:"enabled"`

	// ICEServers are STUN/TURN URLs. Empty means host candidates only.
	ICEServers []string `json:"ice_servers,omitempty"`

	// MaxBuffered is the per-peer backlog in bytes above which frames are skipped.
	MaxBuffered uint64 `json:"max_buffered"`

	// MaxPeers limits concurrent viewers per channel.
	MaxPeers int `json:"max_peers"`

	// Loopback includes loopback ICE candidates (local testing).
	Loopback bool `json:"loopback,omitempty"`
}

// DefaultConfig returns the defaults: 1 MiB backlog, 8 viewers.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		MaxBuffered: 1 << 20,
		MaxPeers:    8,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string
	if c.MaxBuffered < maxChunkSize {
		errs = append(errs, fmt.Sprintf("max_buffered must be at least %d", maxChunkSize))
	}
	if c.MaxPeers < 1 {
		errs = append(errs, "max_peers must be at least 1")
	}
	return errs
}

const gatherTimeout = 5 * time.Second

var (
	// ErrTooManyPeers is returned when MaxPeers viewers are connected.
	ErrTooManyPeers = errors.New("rtc: too many peers")

	// ErrGatherTimeout is returned when ICE gathering does not finish.
	ErrGatherTimeout = errors.New("rtc: ICE gathering timed out")
)

// Stats counts channel traffic.
type Stats struct {
	Peers   int    `json:"peers"`
	Frames  uint64 `json:"frames"`
	Skipped uint64 `json:"skipped"`
}

type peer struct {
	id   string
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
	open atomic.Bool
}

// Channel fans JPEG frames of one kind out to WebRTC peers.
type Channel struct {
	label  string
	cfg    Config
	api    *webrtc.API
	logger *slog.Logger

	mu    sync.Mutex
	peers map[string]*peer
	seq   uint32

	frames  atomic.Uint64
	skipped atomic.Uint64
}

// NewChannel creates a channel accepting data channels labelled label.
func NewChannel(label string, cfg Config, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}

	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(cfg.Loopback)

	return &Channel{
		label:  label,
		cfg:    cfg,
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		logger: logger.With("component", "rtc", "channel", label),
		peers:  make(map[string]*peer),
	}
}

// Answer accepts a viewer offer and returns the answer and the peer id.
func (c *Channel) Answer(offer webrtc.SessionDescription) (webrtc.SessionDescription, string, error) {
	c.mu.Lock()
	full := len(c.peers) >= c.cfg.MaxPeers
	c.mu.Unlock()
	if full {
		return webrtc.SessionDescription{}, "", ErrTooManyPeers
	}

	var ice []webrtc.ICEServer
	if len(c.cfg.ICEServers) > 0 {
		ice = []webrtc.ICEServer{{URLs: c.cfg.ICEServers}}
	}
	pc, err := c.api.NewPeerConnection(webrtc.Configuration{ICEServers: ice})
	if err != nil {
		return webrtc.SessionDescription{}, "", fmt.Errorf("rtc: new peer connection: %w", err)
	}

	p := &peer{id: uuid.NewString(), pc: pc}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != c.label {
			c.logger.Warn("ignoring data channel", "label", dc.Label())
			return
		}
		c.mu.Lock()
		p.dc = dc
		c.mu.Unlock()

		dc.OnOpen(func() {
			p.open.Store(true)
			c.logger.Info("peer connected", "peer", p.id)
		})
		dc.OnClose(func() {
			p.open.Store(false)
			c.remove(p.id)
		})
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.remove(p.id)
		}
	})

	if err := c.negotiate(pc, offer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, "", err
	}

	c.mu.Lock()
	c.peers[p.id] = p
	c.mu.Unlock()

	return *pc.LocalDescription(), p.id, nil
}

func (c *Channel) negotiate(pc *webrtc.PeerConnection, offer webrtc.SessionDescription) error {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("rtc: set offer: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("rtc: create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("rtc: set answer: %w", err)
	}

	select {
	case <-gathered:
		return nil
	case <-time.After(gatherTimeout):
		return ErrGatherTimeout
	}
}

func (c *Channel) remove(id string) {
	c.mu.Lock()
	p, ok := c.peers[id]
	delete(c.peers, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	// Close may run from a pion callback
	go p.pc.Close()
	c.logger.Info("peer disconnected", "peer", id)
}

// Active reports whether any peer has an open data channel.
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.peers {
		if p.open.Load() {
			return true
		}
	}
	return false
}

// Send delivers one encoded frame to every open peer. Peers whose backlog
// exceeds MaxBuffered skip the frame.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	targets := make([]*peer, 0, len(c.peers))
	for _, p := range c.peers {
		if p.open.Load() && p.dc != nil {
			targets = append(targets, p)
		}
	}
	c.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	chunks, err := Split(seq, data)
	if err != nil {
		return err
	}

	c.frames.Add(1)
	for _, p := range targets {
		if p.dc.BufferedAmount() > c.cfg.MaxBuffered {
			c.skipped.Add(1)
			continue
		}
		for _, chunk := range chunks {
			if err := p.dc.Send(chunk); err != nil {
				c.logger.Debug("send failed", "peer", p.id, "error", err)
				break
			}
		}
	}
	return nil
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	n := len(c.peers)
	c.mu.Unlock()
	return Stats{Peers: n, Frames: c.frames.Load(), Skipped: c.skipped.Load()}
}

// Close disconnects every peer.
func (c *Channel) Close() {
	c.mu.Lock()
	peers := c.peers
	c.peers = make(map[string]*peer)
	c.mu.Unlock()

	for _, p := range peers {
		p.pc.Close()
	}
}
