// Package bridge drives the speech engines of the candidate's browser
// over a websocket. The browser is the host: it runs recognition and
// synthesis and answers the bridge's requests. Bridge implements
// speechio.Recognizer and speechio.Synthesizer.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/candidly/pkg/metrics"
	"github.com/teslashibe/candidly/pkg/protocol"
	"github.com/teslashibe/candidly/pkg/speechio"
)

// Sentinel errors.
var (
	ErrNoHost   = errors.New("bridge: no speech host connected")
	ErrHostGone = errors.New("bridge: speech host disconnected")
)

// hostConn is the attached browser.
type hostConn struct {
	id        string
	conn      *websocket.Conn
	connected time.Time

	mu sync.Mutex
}

func (h *hostConn) send(msg *protocol.Message, timeout time.Duration) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.conn.SetWriteDeadline(time.Now().Add(timeout))
	return h.conn.WriteMessage(websocket.TextMessage, data)
}

type request struct {
	kind protocol.MessageType
	host *hostConn
	ch   chan response
}

type response struct {
	msg *protocol.Message
	err error
}

// Bridge relays recognition and synthesis requests to one host at a time.
// A new connection replaces the previous one, as after a page reload.
type Bridge struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	host     *hostConn
	attached chan struct{} // closed while a host is attached
	caps     *protocol.CapabilitiesData
	pending  map[string]*request

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
}

// New creates a bridge.
func New(opts ...Option) (*Bridge, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		config:   cfg,
		logger:   cfg.Logger.With("component", "bridge.Bridge"),
		attached: make(chan struct{}),
		pending:  make(map[string]*request),
	}, nil
}

// Handler returns the websocket handler for the host endpoint. The
// caller mounts it behind a websocket upgrade check.
func (b *Bridge) Handler() fiber.Handler {
	return websocket.New(b.handleHost)
}

func (b *Bridge) handleHost(c *websocket.Conn) {
	h := &hostConn{
		id:        uuid.NewString(),
		conn:      c,
		connected: time.Now(),
	}
	logger := b.logger.With("host_id", h.id)

	b.attach(h)
	defer b.detach(h)

	hello, err := protocol.NewHelloMessage(h.id, b.config.Locale, b.config.Constraints)
	if err == nil {
		err = b.send(h, hello)
	}
	if err != nil {
		logger.Warn("hello failed", "error", err)
		return
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("host read ended", "error", err)
			return
		}
		b.messagesReceived.Add(1)

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			logger.Warn("unparseable host message", "error", err)
			continue
		}
		b.dispatch(h, msg)
	}
}

func (b *Bridge) attach(h *hostConn) {
	b.mu.Lock()
	old := b.host
	if old == nil {
		close(b.attached)
	}
	b.host = h
	b.caps = nil
	b.mu.Unlock()

	metrics.BridgeHosts.Set(1)
	if old != nil {
		b.logger.Info("speech host replaced", "old_host_id", old.id, "host_id", h.id)
		b.failPending(old)
		old.conn.Close()
		return
	}
	b.logger.Info("speech host connected", "host_id", h.id)
}

func (b *Bridge) detach(h *hostConn) {
	b.mu.Lock()
	current := b.host == h
	if current {
		b.host = nil
		b.caps = nil
		b.attached = make(chan struct{})
	}
	b.mu.Unlock()

	b.failPending(h)
	if current {
		metrics.BridgeHosts.Set(0)
		b.logger.Info("speech host disconnected", "host_id", h.id, "connected_for", time.Since(h.connected).Round(time.Second))
	}
}

// failPending resolves every request sent to h with ErrHostGone.
func (b *Bridge) failPending(h *hostConn) {
	b.mu.Lock()
	var gone []*request
	for id, req := range b.pending {
		if req.host == h {
			gone = append(gone, req)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, req := range gone {
		req.ch <- response{err: ErrHostGone}
	}
}

func (b *Bridge) dispatch(h *hostConn, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeCapabilities:
		caps, err := msg.GetCapabilitiesData()
		if err != nil {
			b.logger.Warn("bad capabilities", "error", err)
			return
		}
		b.mu.Lock()
		if b.host == h {
			b.caps = caps
		}
		b.mu.Unlock()
		b.logger.Info("host capabilities",
			"recognition", caps.Recognition,
			"synthesis", caps.Synthesis,
			"user_agent", caps.UserAgent,
		)

	case protocol.TypeResult, protocol.TypeSpeechEnd, protocol.TypeError:
		b.resolve(h, msg)

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			b.send(h, pong)
		}

	default:
		b.logger.Debug("ignored host message", "type", msg.Type)
	}
}

func (b *Bridge) resolve(h *hostConn, msg *protocol.Message) {
	b.mu.Lock()
	req, ok := b.pending[msg.ID]
	if ok && req.host == h {
		delete(b.pending, msg.ID)
	}
	b.mu.Unlock()

	if !ok || req.host != h {
		b.logger.Debug("reply for unknown request", "type", msg.Type, "id", msg.ID)
		return
	}
	req.ch <- response{msg: msg}
}

func (b *Bridge) send(h *hostConn, msg *protocol.Message) error {
	if err := h.send(msg, b.config.WriteTimeout); err != nil {
		return err
	}
	b.messagesSent.Add(1)
	return nil
}

// waitHost returns the attached host, waiting up to ConnectTimeout.
func (b *Bridge) waitHost(ctx context.Context) (*hostConn, error) {
	timer := time.NewTimer(b.config.ConnectTimeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		h := b.host
		attached := b.attached
		b.mu.Unlock()
		if h != nil {
			return h, nil
		}

		select {
		case <-attached:
		case <-timer.C:
			return nil, ErrNoHost
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// call sends a request and registers for its reply.
func (b *Bridge) call(ctx context.Context, kind protocol.MessageType, build func(id string) (*protocol.Message, error)) (*hostConn, string, *request, error) {
	h, err := b.waitHost(ctx)
	if err != nil {
		return nil, "", nil, err
	}

	id := uuid.NewString()
	msg, err := build(id)
	if err != nil {
		return nil, "", nil, err
	}

	req := &request{kind: kind, host: h, ch: make(chan response, 1)}
	b.mu.Lock()
	b.pending[id] = req
	b.mu.Unlock()

	if err := b.send(h, msg); err != nil {
		b.forget(id)
		return nil, "", nil, fmt.Errorf("%w: %w", ErrHostGone, err)
	}
	return h, id, req, nil
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Available reports whether the host can recognize speech. Until a host
// reports its capabilities the answer is optimistic.
func (b *Bridge) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.caps == nil {
		return true
	}
	return b.caps.Recognition
}

// Recognize asks the host for one final recognition result. Host error
// codes map to speechio sentinels; a missing or lost host is a network
// error so the caller backs off and retries.
func (b *Bridge) Recognize(ctx context.Context, opts speechio.RecognizeOptions) (speechio.Recognition, error) {
	h, id, req, err := b.call(ctx, protocol.TypeRecognize, func(id string) (*protocol.Message, error) {
		return protocol.NewRecognizeMessage(id, opts)
	})
	if err != nil {
		if ctx.Err() != nil {
			return speechio.Recognition{}, ctx.Err()
		}
		return speechio.Recognition{}, fmt.Errorf("%w: %w", speechio.ErrNetwork, err)
	}

	select {
	case resp := <-req.ch:
		if resp.err != nil {
			return speechio.Recognition{}, fmt.Errorf("%w: %w", speechio.ErrNetwork, resp.err)
		}
		return b.recognition(resp.msg)

	case <-ctx.Done():
		b.forget(id)
		if abort, err := protocol.NewAbortRecognitionMessage(id); err == nil {
			b.send(h, abort)
		}
		return speechio.Recognition{}, ctx.Err()
	}
}

func (b *Bridge) recognition(msg *protocol.Message) (speechio.Recognition, error) {
	switch msg.Type {
	case protocol.TypeResult:
		res, err := msg.GetResultData()
		if err != nil {
			return speechio.Recognition{}, fmt.Errorf("bridge: bad result: %w", err)
		}
		return speechio.Recognition{
			Text:       res.Text,
			Confidence: res.Confidence,
			At:         res.Time(),
		}, nil

	case protocol.TypeError:
		e, err := msg.GetErrorData()
		if err != nil {
			return speechio.Recognition{}, fmt.Errorf("bridge: bad error: %w", err)
		}
		metrics.BridgeErrors.WithLabelValues(e.Code).Inc()
		return speechio.Recognition{}, speechio.ErrorFromCode(e.Code, e.Message)

	default:
		return speechio.Recognition{}, fmt.Errorf("bridge: unexpected %s reply to recognize", msg.Type)
	}
}

// Speak asks the host to play u and returns when playback has ended.
func (b *Bridge) Speak(ctx context.Context, u speechio.Utterance) error {
	h, id, req, err := b.call(ctx, protocol.TypeSpeak, func(id string) (*protocol.Message, error) {
		return protocol.NewSpeakMessage(id, u)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	select {
	case resp := <-req.ch:
		if resp.err != nil {
			return resp.err
		}
		switch resp.msg.Type {
		case protocol.TypeSpeechEnd:
			return nil
		case protocol.TypeError:
			e, _ := resp.msg.GetErrorData()
			if e == nil {
				e = &protocol.ErrorData{}
			}
			metrics.BridgeErrors.WithLabelValues("synthesis").Inc()
			return fmt.Errorf("bridge: synthesis failed: %s %s", e.Code, e.Message)
		default:
			return fmt.Errorf("bridge: unexpected %s reply to speak", resp.msg.Type)
		}

	case <-ctx.Done():
		b.forget(id)
		if cancel, err := protocol.NewCancelSpeechMessage(); err == nil {
			b.send(h, cancel)
		}
		return ctx.Err()
	}
}

// Cancel stops any playback on the host. It is a no-op with no host.
func (b *Bridge) Cancel() error {
	b.mu.Lock()
	h := b.host
	b.mu.Unlock()
	if h == nil {
		return nil
	}

	msg, err := protocol.NewCancelSpeechMessage()
	if err != nil {
		return err
	}
	return b.send(h, msg)
}

// Connected reports whether a host is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host != nil
}

// Stats contains bridge statistics.
type Stats struct {
	Connected        bool   `json:"connected"`
	HostID           string `json:"host_id,omitempty"`
	Pending          int    `json:"pending"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
}

// GetStats returns bridge statistics.
func (b *Bridge) GetStats() Stats {
	b.mu.Lock()
	s := Stats{
		Connected: b.host != nil,
		Pending:   len(b.pending),
	}
	if b.host != nil {
		s.HostID = b.host.id
	}
	b.mu.Unlock()

	s.MessagesReceived = b.messagesReceived.Load()
	s.MessagesSent = b.messagesSent.Load()
	return s
}

var (
	_ speechio.Recognizer  = (*Bridge)(nil)
	_ speechio.Synthesizer = (*Bridge)(nil)
)
